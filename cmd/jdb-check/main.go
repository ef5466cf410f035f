// Command jdb-check runs an end-to-end check of the jdb helpers against a
// live database: it creates a test table, fills it, reads it back through
// every helper, drops it and closes the pooled connections.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/shrek82/jdb/config"
	_ "github.com/shrek82/jdb/dialect"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	host       = flag.String("host", "", "database host address (default localhost)")
	dbName     = flag.String("db", "", "database (default testdb)")
	driver     = flag.String("driver", "", "database driver: mysql, sqlite3, postgres or pgx")
	port       = flag.Int("port", 0, "database port")
	user       = flag.String("user", "", "database user")
	password   = flag.String("password", "", "database password")
	workers    = flag.Int("workers", 4, "concurrent workers in the pool check")
	debug      = flag.Bool("debug", false, "log every statement")
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *workers, nil); err != nil {
		log.Printf("FAIL: %v", err)
		stop()
		os.Exit(1)
	}
	log.Printf("OK")
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "db":
			cfg.Database = *dbName
		case "driver":
			cfg.Driver = *driver
		case "port":
			cfg.Port = *port
		case "user":
			cfg.User = *user
		case "password":
			cfg.Password = *password
		}
	})
	if *debug {
		cfg.Logging.Level = "debug"
	}
}
