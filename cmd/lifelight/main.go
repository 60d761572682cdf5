package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/lifelight/internal/api"
	"github.com/lox/lifelight/internal/inat"
	"github.com/lox/lifelight/internal/store"
	"github.com/lox/lifelight/internal/syncer"
)

var cli struct {
	DB       string        `help:"Path to the SQLite database." default:"data/lifelight.db" env:"LIFELIGHT_DB"`
	Port     string        `help:"HTTP server port." default:"8080" env:"LIFELIGHT_PORT"`
	Login    string        `help:"iNaturalist login whose observations are synced." env:"INAT_LOGIN" required:""`
	APIBase  string        `name:"api-base" help:"iNaturalist API base URL." default:"https://api.inaturalist.org/v2" env:"INAT_API_BASE"`
	Interval time.Duration `help:"Interval between sync cycles." default:"15m" env:"LIFELIGHT_SYNC_INTERVAL"`
	Once     bool          `help:"Run a single sync cycle and exit."`
	NoPoll   bool          `help:"Disable periodic sync (server only, for local dev)."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("lifelight"),
		kong.Description("Local replica of iNaturalist observations."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	client := inat.NewClient(cli.APIBase)
	sync := syncer.New(st, client, cli.Login)
	server := api.NewServer(st, cli.Port)
	sync.SetListener(server.NotifyUpserted)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cli.Once {
		res, err := sync.SyncOnce(ctx)
		if err != nil {
			log.Fatalf("sync: %v", err)
		}
		log.Printf("synced %d observations over %d pages (%d skipped)", res.Upserted, res.Pages, res.Skipped)
		return
	}

	if !cli.NoPoll {
		go syncer.NewScheduler(sync, cli.Interval).Run(ctx)
	} else {
		log.Println("polling disabled (--no-poll)")
	}

	log.Printf("starting server on :%s", cli.Port)
	if err := server.Run(ctx); err != nil {
		kctx.FatalIfErrorf(err)
	}
}
