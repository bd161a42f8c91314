package main

import (
	"fmt"
	"io"
	"strings"

	"hb-go/internal/config"
)

// printConfig writes a readable summary of cfg. The password is masked.
func printConfig(w io.Writer, cfg *config.Config) {
	pg := cfg.Postgres
	password := ""
	if pg.Password != "" {
		password = "********"
	}

	fmt.Fprintf(w, "Base Dir:     %s\n", cfg.BaseDir)
	fmt.Fprintf(w, "Log Dir:      %s\n", cfg.LogDir)
	fmt.Fprintf(w, "Host:         %s\n", orDefault(pg.Host, "(libpq default)"))
	if pg.Port != 0 {
		fmt.Fprintf(w, "Port:         %d\n", pg.Port)
	}
	fmt.Fprintf(w, "User:         %s\n", orDefault(pg.User, "(libpq default)"))
	if password != "" {
		fmt.Fprintf(w, "Password:     %s\n", password)
	}
	fmt.Fprintf(w, "Database:     %s\n", orDefault(pg.DBName, "postgres"))
	fmt.Fprintf(w, "Catalog:      %s %s\n", cfg.Catalog.Type, cfg.Catalog.DataDir)
	fmt.Fprintf(w, "Destination:  %s %s\n", cfg.Destination.Type, cfg.Destination.Root)
	if len(cfg.Copy.Command) > 0 {
		fmt.Fprintf(w, "Copy Command: %s\n", strings.Join(cfg.Copy.Command, " "))
		if cfg.Copy.Timeout != "" {
			fmt.Fprintf(w, "Copy Timeout: %s\n", cfg.Copy.Timeout)
		}
	} else {
		fmt.Fprintln(w, "Copy Command: (none)")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
