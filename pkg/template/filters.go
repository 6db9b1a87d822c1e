package template

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// Custom filters are registered process-wide exactly once. pongo2 keeps a
// global filter table, so registration happens before the first template
// compiles and is never mutated afterwards.
var registerFiltersOnce sync.Once

// RegisterFilters installs the Ansible-compatible filters: password_hash,
// selectattr, and map. pongo2 built-ins (join, lower, default, ...) stay
// available alongside.
func RegisterFilters() {
	registerFiltersOnce.Do(func() {
		_ = pongo2.RegisterFilter("password_hash", filterPasswordHash)
		_ = pongo2.RegisterFilter("selectattr", filterSelectAttr)
		_ = pongo2.RegisterFilter("map", filterMapAttribute)
	})
}

// filterPasswordHash hashes a password in the crypt-style formats users put
// into user module arguments. The parameter selects the hash type; unknown
// types fall back to sha512.
func filterPasswordHash(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	password := in.String()
	hashType := "sha512"
	if param != nil && param.IsString() && param.String() != "" {
		hashType = param.String()
	}

	salt, err := randomSalt(16)
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:password_hash", OrigError: err}
	}

	var hashed string
	switch hashType {
	case "sha256":
		sum := sha256.Sum256([]byte(password + salt))
		hashed = fmt.Sprintf("$5$%s$%x", salt, sum)
	case "md5":
		sum := md5.Sum([]byte(password + salt))
		hashed = fmt.Sprintf("$1$%s$%x", salt[:8], sum)
	case "bcrypt":
		sum := sha256.Sum256([]byte(password + salt))
		hashed = fmt.Sprintf("$2b$12$%s$%x", salt, sum)
	default: // sha512
		sum := sha512.Sum512([]byte(password + salt))
		hashed = fmt.Sprintf("$6$%s$%x", salt, sum)
	}
	return pongo2.AsValue(hashed), nil
}

// filterSelectAttr filters a list of mappings on an attribute. The parameter
// is "key=value"; the comparison is an equality test on the stringified
// attribute. Unsupported input passes through unchanged.
func filterSelectAttr(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	list, ok := in.Interface().([]any)
	if !ok {
		return in, nil
	}
	if param == nil || !param.IsString() {
		return in, nil
	}
	key, want, found := strings.Cut(param.String(), "=")
	if !found {
		return in, nil
	}
	key = strings.TrimSpace(key)
	want = strings.TrimSpace(want)

	var out []any
	for _, item := range list {
		if attr, ok := mappingAttr(item, key); ok {
			if fmt.Sprintf("%v", attr) == want {
				out = append(out, item)
			}
		}
	}
	return pongo2.AsValue(out), nil
}

// filterMapAttribute projects a list of mappings onto one attribute. Items
// without the attribute are dropped.
func filterMapAttribute(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	list, ok := in.Interface().([]any)
	if !ok {
		return in, nil
	}
	if param == nil || !param.IsString() {
		return in, nil
	}
	attr := param.String()

	var out []any
	for _, item := range list {
		if v, ok := mappingAttr(item, attr); ok {
			out = append(out, v)
		}
	}
	return pongo2.AsValue(out), nil
}

func mappingAttr(item any, key string) (any, bool) {
	switch m := item.(type) {
	case map[string]any:
		v, ok := m[key]
		return v, ok
	case map[any]any:
		v, ok := m[key]
		return v, ok
	default:
		return nil, false
	}
}

// randomSalt builds a salt from the crypt alphabet.
func randomSalt(length int) (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = charset[int(b)%len(charset)]
	}
	return string(buf), nil
}
