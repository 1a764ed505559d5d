// Command catalogschema prints the JSON schema for kitchen catalog files.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/bytedance/sonic"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
)

func main() {
	out := flag.String("out", "", "write the schema to this file instead of stdout")
	check := flag.String("check", "", "validate a catalog file and print its fingerprint")
	flag.Parse()

	if *check != "" {
		cat, err := catalog.Load(*check)
		if err != nil {
			log.Fatalf("%v", err)
		}
		os.Stdout.WriteString(cat.Fingerprint() + "\n")
		return
	}

	data, err := sonic.ConfigStd.MarshalIndent(catalog.Schema(), "", "  ")
	if err != nil {
		log.Fatalf("encode schema: %v", err)
	}
	data = append(data, '\n')

	if *out == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("write schema: %v", err)
	}
}
