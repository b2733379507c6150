package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kiang/biz-crawlers/pkg/config"
	"github.com/kiang/biz-crawlers/pkg/crawler"
	"github.com/kiang/biz-crawlers/pkg/fetch"
	"github.com/kiang/biz-crawlers/pkg/models"
	"github.com/kiang/biz-crawlers/pkg/pdflist"
	"github.com/kiang/biz-crawlers/pkg/registry"
	"github.com/kiang/biz-crawlers/pkg/schools"
	"github.com/kiang/biz-crawlers/pkg/store"
	"github.com/kiang/biz-crawlers/pkg/taxcsv"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	configFileFlag := flag.String("config", "config.yaml", "Path to YAML config file")
	modeFlag := flag.String("mode", "details", "Mode: details | pdflist | taxcsv | schools")
	kindFlag := flag.String("kind", "company", "Entity kind: company | business")
	idsFlag := flag.String("ids", "", "Comma-separated entity IDs to fetch (details mode)")
	idsFileFlag := flag.String("ids-file", "", "File with one entity ID per line (details mode)")
	yearFlag := flag.Int("year", 0, "Gregorian year of the change list (pdflist mode)")
	monthFlag := flag.Int("month", 0, "Month of the change list (pdflist mode)")
	inputFlag := flag.String("input", "", "Path to the Big5 tax CSV dump (taxcsv mode)")
	logLevelFlag := flag.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	fastFlag := flag.Bool("fast", false, "Disable deliberate delays (trusted/internal replays only)")
	flag.Parse()

	if level, err := logrus.ParseLevel(*logLevelFlag); err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
	}

	appCfg := loadConfig(*configFileFlag, log)
	if *fastFlag {
		appCfg.FastMode = true
	}
	warnings, err := appCfg.Validate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	kind := models.EntityKind(*kindFlag)
	if !kind.IsValid() {
		log.Fatalf("Invalid -kind %q: want company or business", *kindFlag)
	}

	// Cancel between iterations on SIGINT/SIGTERM; a long batch has no other
	// stop mechanism.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal %v, finishing current item and stopping", sig)
		cancel()
	}()

	client, err := fetch.NewClient(appCfg.HTTPClientSettings, appCfg.ProxyURL, log)
	if err != nil {
		log.Fatalf("HTTP client error: %v", err)
	}
	limiter := fetch.NewRateLimiter(appCfg.MinRequestInterval, appCfg.FastMode, logrus.NewEntry(log))

	reg, err := registry.Open(appCfg.StateDir, logrus.NewEntry(log))
	if err != nil {
		log.Fatalf("Registry error: %v", err)
	}
	defer reg.Close()
	go reg.RunGC(ctx, 5*time.Minute)

	switch *modeFlag {
	case "details":
		ids, err := collectIDs(*idsFlag, *idsFileFlag)
		if err != nil {
			log.Fatalf("ID list error: %v", err)
		}
		if len(ids) == 0 {
			log.Fatal("details mode requires -ids or -ids-file")
		}
		session := fetch.NewSession(client, appCfg, logrus.NewEntry(log))
		defer session.Close()
		st := store.New(appCfg.OutputBaseDir, logrus.NewEntry(log))
		c := crawler.New(appCfg, session, limiter, st, reg, logrus.NewEntry(log))
		summary, err := c.Crawl(ctx, ids, kind)
		if err != nil {
			log.Warnf("Batch interrupted: %v", err)
		}
		log.Infof("Done: %d processed, %d succeeded, %d skipped, %d not found, %d failed",
			summary.Processed, summary.Succeeded, summary.Skipped, summary.NotFound, summary.Failed)

	case "pdflist":
		p := pdflist.New(client, appCfg, limiter, reg, logrus.NewEntry(log))
		ids, err := p.Run(ctx, *yearFlag, *monthFlag)
		if err != nil {
			log.Fatalf("PDF list error: %v", err)
		}
		for _, id := range ids {
			fmt.Println(id)
		}

	case "taxcsv":
		if *inputFlag == "" {
			log.Fatal("taxcsv mode requires -input")
		}
		f, err := os.Open(*inputFlag)
		if err != nil {
			log.Fatalf("Open input error: %v", err)
		}
		defer f.Close()
		r := taxcsv.New(logrus.NewEntry(log))
		total := 0
		err = r.Stream(ctx, f, 1000, func(rows []taxcsv.Row) error {
			total += len(rows)
			for _, row := range rows {
				fmt.Println(row.ID)
			}
			return nil
		})
		if err != nil {
			log.Fatalf("Tax CSV error: %v", err)
		}
		log.Infof("Done: %d rows", total)

	case "schools":
		s := schools.New(client, appCfg, limiter, logrus.NewEntry(log))
		rows, err := s.Run(ctx)
		if err != nil {
			log.Fatalf("School directory error: %v", err)
		}
		for _, row := range rows {
			fmt.Printf("%s\t%s\n", row.ID, row.Name)
		}

	default:
		log.Fatalf("Unknown -mode %q", *modeFlag)
	}
}

// loadConfig reads the YAML config. A missing default config file is fine
// (everything has a default); an explicitly named missing file is fatal.
func loadConfig(path string, log *logrus.Logger) *config.AppConfig {
	var appCfg config.AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == "config.yaml" {
			log.Warnf("No config file at %s, using built-in defaults", path)
			return &appCfg
		}
		log.Fatalf("Read config file '%s' error: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &appCfg); err != nil {
		log.Fatalf("Parse config file '%s' error: %v", path, err)
	}
	return &appCfg
}

// collectIDs merges the -ids flag and -ids-file contents, normalizing each.
func collectIDs(csv, file string) ([]models.EntityID, error) {
	var ids []models.EntityID
	for _, raw := range strings.Split(csv, ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		id, err := models.NormalizeID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			raw := strings.TrimSpace(scanner.Text())
			if raw == "" {
				continue
			}
			id, err := models.NormalizeID(raw)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
