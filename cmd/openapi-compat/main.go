// Package main checks that the API description stays backward compatible with
// a published baseline: no path, operation or documented response code may
// disappear.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"carkey/docs"

	"gopkg.in/yaml.v3"
)

var supportedMethods = map[string]struct{}{
	"get":     {},
	"put":     {},
	"post":    {},
	"delete":  {},
	"patch":   {},
	"head":    {},
	"options": {},
}

// apiSurface maps path -> method -> response codes.
type apiSurface map[string]map[string]map[string]struct{}

func main() {
	basePath := flag.String("base", "", "baseline swagger file (YAML or JSON)")
	revisionPath := flag.String("revision", "", "revision swagger file; defaults to the description built into this binary")
	writePath := flag.String("write", "", "write the built-in description as YAML to this path and exit")
	flag.Parse()

	if *writePath != "" {
		if err := writeBaseline(*writePath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write baseline: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("baseline written to %s\n", *writePath)
		return
	}

	if strings.TrimSpace(*basePath) == "" {
		fmt.Fprintln(os.Stderr, "usage: openapi-compat -base <path> [-revision <path>] | -write <path>")
		os.Exit(2)
	}

	base, err := loadFile(*basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base spec: %v\n", err)
		os.Exit(1)
	}

	var revision apiSurface
	if *revisionPath != "" {
		revision, err = loadFile(*revisionPath)
	} else {
		revision, err = parseSurface([]byte(docs.SwaggerInfo.ReadDoc()))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load revision spec: %v\n", err)
		os.Exit(1)
	}

	issues := compare(base, revision)
	if len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "backward compatibility check failed:")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "- %s\n", issue)
		}
		os.Exit(1)
	}

	fmt.Println("openapi compatibility check passed")
}

// writeBaseline re-encodes the built-in JSON description as YAML.
func writeBaseline(path string) error {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(docs.SwaggerInfo.ReadDoc()), &doc); err != nil {
		return err
	}
	// Flow style is inherited from JSON; reset it so the output is block YAML.
	resetStyle(&doc)
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func resetStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	for _, child := range n.Content {
		resetStyle(child)
	}
}

func loadFile(path string) (apiSurface, error) {
	// #nosec G304: path comes from CLI flags in a dev tool
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSurface(raw)
}

// parseSurface accepts YAML or JSON, since JSON is valid YAML.
func parseSurface(raw []byte) (apiSurface, error) {
	var doc struct {
		Paths map[string]map[string]yaml.Node `yaml:"paths"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Paths == nil {
		return nil, fmt.Errorf("missing top-level paths field")
	}

	surface := make(apiSurface, len(doc.Paths))
	for path, item := range doc.Paths {
		ops := make(map[string]map[string]struct{})
		for method, node := range item {
			method = strings.ToLower(strings.TrimSpace(method))
			if _, ok := supportedMethods[method]; !ok {
				continue
			}
			var op struct {
				Responses map[string]yaml.Node `yaml:"responses"`
			}
			if err := node.Decode(&op); err != nil {
				return nil, fmt.Errorf("%s %s: %w", strings.ToUpper(method), path, err)
			}
			codes := make(map[string]struct{}, len(op.Responses))
			for code := range op.Responses {
				if code = strings.ToLower(strings.TrimSpace(code)); code != "" {
					codes[code] = struct{}{}
				}
			}
			ops[method] = codes
		}
		if len(ops) > 0 {
			surface[path] = ops
		}
	}
	return surface, nil
}

func compare(base, revision apiSurface) []string {
	var issues []string

	for path, baseOps := range base {
		revOps, ok := revision[path]
		if !ok {
			issues = append(issues, fmt.Sprintf("removed path: %s", path))
			continue
		}

		for method, baseCodes := range baseOps {
			revCodes, ok := revOps[method]
			if !ok {
				issues = append(issues, fmt.Sprintf("removed operation: %s %s", strings.ToUpper(method), path))
				continue
			}

			for code := range baseCodes {
				if _, ok := revCodes[code]; !ok {
					issues = append(issues, fmt.Sprintf(
						"removed response code: %s %s -> %s",
						strings.ToUpper(method), path, strings.ToUpper(code),
					))
				}
			}
		}
	}

	sort.Strings(issues)
	return issues
}
