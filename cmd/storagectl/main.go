package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/caseace-cache/internal/config"
	"github.com/onnwee/caseace-cache/internal/logger"
	"github.com/onnwee/caseace-cache/internal/server"
)

func main() {
	keysCmd := flag.NewFlagSet("keys", flag.ExitOnError)
	getCmd := flag.NewFlagSet("get", flag.ExitOnError)
	rmCmd := flag.NewFlagSet("rm", flag.ExitOnError)
	purgeCmd := flag.NewFlagSet("purge", flag.ExitOnError)
	statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
	clearCmd := flag.NewFlagSet("clear", flag.ExitOnError)

	keysPrefix := keysCmd.String("prefix", "", "Only list keys starting with this prefix")
	purgeDryRun := purgeCmd.Bool("dry-run", false, "Report what would be removed without deleting")
	clearNamespace := clearCmd.String("namespace", "", "Cache namespace to clear (default: CACHE_NAMESPACE)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := server.OpenStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	switch os.Args[1] {
	case "keys":
		keysCmd.Parse(os.Args[2:])
		err = runKeys(os.Stdout, store, *keysPrefix)
	case "get":
		getCmd.Parse(os.Args[2:])
		if getCmd.NArg() != 1 {
			printUsage()
			os.Exit(1)
		}
		err = runGet(os.Stdout, store, getCmd.Arg(0))
	case "rm":
		rmCmd.Parse(os.Args[2:])
		if rmCmd.NArg() == 0 {
			printUsage()
			os.Exit(1)
		}
		err = runRemove(os.Stdout, store, rmCmd.Args())
	case "purge":
		purgeCmd.Parse(os.Args[2:])
		err = runPurge(ctx, os.Stdout, store, store.Purge, *purgeDryRun)
	case "stats":
		statsCmd.Parse(os.Args[2:])
		err = runStats(os.Stdout, store)
	case "clear":
		clearCmd.Parse(os.Args[2:])
		ns := *clearNamespace
		if ns == "" {
			ns = cfg.CacheNamespace
		}
		err = runClear(os.Stdout, store, ns)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func printUsage() {
	fmt.Println("Cache Storage Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  storagectl keys [-prefix p]          - List persisted keys")
	fmt.Println("  storagectl get <key>                 - Show a persisted item and its metadata")
	fmt.Println("  storagectl rm <key>...               - Remove persisted items")
	fmt.Println("  storagectl purge [-dry-run]          - Remove expired and unreadable items")
	fmt.Println("  storagectl stats                     - Summarize the store")
	fmt.Println("  storagectl clear [-namespace ns]     - Remove every item of a cache namespace")
	fmt.Println()
	fmt.Println("The store is selected with the same STORAGE_* variables as the server.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  storagectl keys -prefix cache:clients")
	fmt.Println("  storagectl get cache:clients:42")
	fmt.Println("  storagectl purge -dry-run")
}
