package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"emberdb/src/config"
	"emberdb/src/db"
	"emberdb/src/schema"
)

// printUsage prints helpful usage information
func printUsage() {
	log.Println("emberdb - an embedded, schema-driven object database")
	log.Println("\nUsage:")
	log.Println("  emberdb [options]")
	log.Println("\nOptions:")
	flag.PrintDefaults()

	log.Println("\nExamples:")
	log.Println("  emberdb --datadir=/data")
	log.Println("  emberdb --datadir=/data --verbose")
}

func main() {
	var (
		dataDir string
		file    string
		verbose bool
		help    bool
	)
	flag.StringVar(&dataDir, "datadir", "./datafiles", "Directory to store database files")
	flag.StringVar(&file, "file", "demo.emberdb", "Database file name, relative to datadir")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&help, "help", false, "Show usage")
	flag.Parse()

	if help {
		printUsage()
		return
	}

	zapCfg := zap.NewProductionConfig()
	if verbose {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapLogger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	config.SetDefaultDirectory(dataDir)

	if err := run(file, logger); err != nil {
		logger.Errorf("demo failed: %v", err)
		os.Exit(1)
	}
}

// run opens a demo database, writes a few objects and scans them back.
func run(file string, logger *zap.SugaredLogger) error {
	cfg := config.Config{
		Path: file,
		Schema: []schema.ObjectSchema{{
			Name:       "Dog",
			PrimaryKey: "name",
			Properties: []schema.Property{
				{Name: "name", Type: schema.TypeString},
				{Name: "age", Type: schema.TypeInt, Default: int64(0)},
			},
		}},
	}

	handle, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer handle.Close()

	err = handle.Write(func() error {
		for name, age := range map[string]int64{"Rex": 3, "Fido": 5, "Odie": 0} {
			if _, err := handle.Create("Dog", map[string]interface{}{"name": name, "age": age}, db.UpdateAll); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	dogs, err := handle.Objects("Dog")
	if err != nil {
		return err
	}
	all, err := dogs.All()
	if err != nil {
		return err
	}

	logger.Infow("scan complete", "path", handle.Path(), "dogs", len(all))
	for _, dog := range all {
		name, err := dog.Get("name")
		if err != nil {
			return err
		}
		age, err := dog.Get("age")
		if err != nil {
			return err
		}
		fmt.Printf("%v, age %v\n", name, age)
	}
	return nil
}
