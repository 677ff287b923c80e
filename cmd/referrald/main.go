package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"referrald/internal/di"
	"referrald/internal/structures"
)

func main() {
	flags := &structures.CliFlags{}
	flag.StringVar(&flags.ConfigPath, "config", "config.yaml", "path to the YAML config file")
	flag.BoolVar(&flags.DebugMode, "debug", false, "log at debug level and mirror logs to stdout")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found")
	}

	app, err := di.InitApp(flags)
	if err != nil {
		log.Fatalf("startup: %s", err)
	}
	if err := app.Run(); err != nil {
		log.Fatalf("referrald: %s", err)
	}
}
