package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by LoadSSMSettings.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParametersByPath(ctx context.Context, in *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// LoadSSMSettings reads every parameter below path (recursively, decrypted)
// and returns them as a settings tree: /prefix/limits/retries becomes
// settings["limits"]["retries"]. Values stay strings.
func LoadSSMSettings(ctx context.Context, api ssmAPI, path string) (map[string]any, error) {
	if api == nil {
		return nil, errors.New("config: ssm api must not be nil")
	}
	path = "/" + strings.Trim(strings.TrimSpace(path), "/")
	if path == "/" {
		return nil, errors.New("config: ssm settings path is required")
	}

	settings := map[string]any{}
	var next *string
	for {
		out, err := api.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(path),
			Recursive:      aws.Bool(true),
			WithDecryption: aws.Bool(true),
			NextToken:      next,
		})
		if err != nil {
			return nil, fmt.Errorf("config: ssm parameters under %q: %w", path, err)
		}
		for _, p := range out.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			rel := strings.Trim(strings.TrimPrefix(*p.Name, path), "/")
			if rel == "" {
				continue
			}
			if err := setNested(settings, strings.Split(rel, "/"), *p.Value); err != nil {
				return nil, err
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return settings, nil
		}
		next = out.NextToken
	}
}

// MergeSettings copies src into the settings tree, overriding existing keys.
func (c *Config) MergeSettings(src map[string]any) {
	if c.Settings == nil {
		c.Settings = map[string]any{}
	}
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if dst, ok := c.Settings[k].(map[string]any); ok {
				merged := &Config{Settings: dst}
				merged.MergeSettings(sub)
				continue
			}
		}
		c.Settings[k] = v
	}
}

func setNested(m map[string]any, parts []string, value string) error {
	for _, part := range parts[:len(parts)-1] {
		child, ok := m[part]
		if !ok {
			next := map[string]any{}
			m[part] = next
			m = next
			continue
		}
		next, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("config: ssm parameter %q is both a value and a path", strings.Join(parts, "/"))
		}
		m = next
	}
	last := parts[len(parts)-1]
	if _, ok := m[last].(map[string]any); ok {
		return fmt.Errorf("config: ssm parameter %q is both a value and a path", strings.Join(parts, "/"))
	}
	m[last] = value
	return nil
}
