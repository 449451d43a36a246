// Command coach-deploy renders the settings files, directory file and
// systemd units of a COACH installation from a YAML deployment description.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/coach-dss/coach/internal/config"
	"github.com/coach-dss/coach/internal/deploy"
)

func main() {
	deployment := flag.String("f", "deployment.yaml", "deployment description")
	outDir := flag.String("o", "out", "output directory")
	servicesPath := flag.String("services", "", "optional services config overriding the known types and default ports")
	flag.Parse()

	d, err := deploy.Load(*deployment)
	if err != nil {
		log.Fatalf("Failed to load deployment: %v", err)
	}

	known := config.DefaultServicesConfig()
	if *servicesPath != "" {
		known, err = config.LoadServicesConfigFromPath(*servicesPath)
		if err != nil {
			log.Fatalf("Failed to load services config: %v", err)
		}
	}

	files, err := deploy.Generate(d, known)
	if err != nil {
		log.Fatalf("Invalid deployment: %v", err)
	}
	if err := deploy.WriteFiles(*outDir, files); err != nil {
		log.Fatalf("Failed to write files: %v", err)
	}

	for _, p := range deploy.Paths(files) {
		fmt.Println(p)
	}
}
