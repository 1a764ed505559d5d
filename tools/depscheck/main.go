package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

const modulePath = "github.com/ddm94/SlimyKitchenOnline"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// rule forbids packages under From from importing anything under To.
type rule struct {
	From []string
	To   []string
}

// The session core must stay free of transport and persistence so replicas
// and the authority can run it without a server.
var rules = []rule{
	{
		From: []string{
			modulePath + "/internal/replicated",
			modulePath + "/internal/ownership",
			modulePath + "/internal/readiness",
			modulePath + "/internal/match",
			modulePath + "/internal/orders",
			modulePath + "/internal/kitchen",
			modulePath + "/internal/session",
			modulePath + "/internal/catalog",
		},
		To: []string{
			modulePath + "/internal/net",
			modulePath + "/internal/hub",
			modulePath + "/internal/store",
			modulePath + "/internal/app",
			"github.com/gorilla/websocket",
			"modernc.org/sqlite",
		},
	},
	{
		From: []string{modulePath + "/internal/sim"},
		To: []string{
			modulePath + "/internal/session",
			modulePath + "/internal/hub",
			modulePath + "/internal/net",
		},
	},
}

func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./internal/...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	decoder := sonic.ConfigStd.NewDecoder(bytes.NewReader(output))

	var violations []string
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
			os.Exit(1)
		}

		for _, r := range rules {
			if !hasPrefix(pkg.ImportPath, r.From) {
				continue
			}
			for _, imp := range pkg.Imports {
				if hasPrefix(imp, r.To) {
					violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
				}
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}
