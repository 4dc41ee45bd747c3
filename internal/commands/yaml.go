package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAML is a kong.ConfigurationLoader for YAML config files. Keys are flag
// names; nested maps join their keys with "-", so
//
//	ledger:
//	  url: https://firefly.example.com
//
// sets --ledger-url. Underscores may stand in for dashes.
func YAML(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	flat := map[string]any{}
	flatten("", values, flat)

	var f kong.ResolverFunc = func(context *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		v, ok := flat[flag.Name]
		if !ok {
			return nil, nil
		}
		return v, nil
	}
	return f, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := strings.ReplaceAll(strings.ToLower(k), "_", "-")
		if prefix != "" {
			key = prefix + "-" + key
		}
		switch v := v.(type) {
		case map[string]any:
			flatten(key, v, out)
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(v)
		}
	}
}
