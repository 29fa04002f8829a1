package app

import (
    "bufio"
    "errors"
    "fmt"
    "os"
    "strings"
)

// LoadEnvFiles loads dotenv files of KEY=VALUE pairs into the process
// environment. Among files, later ones override earlier ones; a variable
// already set to a non-empty value in the process environment is never
// replaced. Blank lines and '#' comments are skipped, a leading "export " is
// accepted, quotes are stripped, and ${VAR} in unquoted or double-quoted
// values expands from earlier entries or the environment. Missing files are
// skipped.
func LoadEnvFiles(paths ...string) error {
    preset := map[string]bool{}
    for _, kv := range os.Environ() {
        if k, v, ok := strings.Cut(kv, "="); ok && v != "" {
            preset[k] = true
        }
    }
    loaded := map[string]string{}
    for _, p := range paths {
        if strings.TrimSpace(p) == "" {
            continue
        }
        if err := parseEnvFile(p, loaded); err != nil {
            if errors.Is(err, os.ErrNotExist) {
                continue
            }
            return err
        }
    }
    for k, v := range loaded {
        if preset[k] {
            continue
        }
        if err := os.Setenv(k, v); err != nil {
            return fmt.Errorf("setenv %s: %w", k, err)
        }
    }
    return nil
}

func parseEnvFile(path string, into map[string]string) error {
    f, err := os.Open(path)
    if err != nil {
        return err
    }
    defer f.Close()

    lookup := func(key string) string {
        if v, ok := into[key]; ok {
            return v
        }
        return os.Getenv(key)
    }
    scanner := bufio.NewScanner(f)
    for scanner.Scan() {
        line := strings.TrimSpace(scanner.Text())
        if line == "" || strings.HasPrefix(line, "#") {
            continue
        }
        line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
        key, val, ok := strings.Cut(line, "=")
        key = strings.TrimSpace(key)
        if !ok || key == "" {
            // ignore malformed lines silently
            continue
        }
        val = strings.TrimSpace(val)
        switch {
        case len(val) >= 2 && val[0] == '\'' && val[len(val)-1] == '\'':
            val = val[1 : len(val)-1]
        case len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"':
            val = os.Expand(val[1:len(val)-1], lookup)
        default:
            if i := strings.Index(val, " #"); i >= 0 {
                val = strings.TrimSpace(val[:i])
            }
            val = os.Expand(val, lookup)
        }
        into[key] = val
    }
    return scanner.Err()
}
