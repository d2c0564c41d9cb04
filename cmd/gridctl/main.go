// gridctl is a one-shot command line for poking a NovaGrid cluster:
//
//	gridctl -config grid.yaml get accounts id=int64:42
//	gridctl -config grid.yaml upsert accounts id=int64:42 name=string:alice
//	gridctl -config grid.yaml remove accounts id=int64:42
//
// Field arguments are name=type:value with type one of int8, int16,
// int32, int64, float, double, uuid, string, bytes (hex).
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/novagrid"
	"github.com/tuannm99/novagrid/internal/config"
)

func main() {
	cfgPath := flag.String("config", "grid.yaml", "path to config file")
	timeout := flag.Duration("timeout", 10*time.Second, "operation timeout")
	flag.Parse()

	if flag.NArg() < 2 {
		usage()
	}
	verb, tableName := flag.Arg(0), flag.Arg(1)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(err)
	}
	setupLog(cfg.Log.Level)

	rec, err := parseFields(flag.Args()[2:])
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := novagrid.Connect(ctx, novagrid.Config{
		Addresses:   cfg.Cluster.Addresses,
		DialTimeout: cfg.Cluster.DialTimeout,
	})
	if err != nil {
		fatal(err)
	}
	defer func() { _ = client.Close() }()

	table, err := client.Tables().Get(ctx, tableName)
	if err != nil {
		fatal(err)
	}

	switch verb {
	case "get":
		row, err := table.Get(ctx, nil, rec)
		if err != nil {
			fatal(err)
		}
		if row == nil {
			fmt.Println("(no such record)")
			return
		}
		fmt.Println(row)
	case "upsert":
		if err := table.Upsert(ctx, nil, rec); err != nil {
			fatal(err)
		}
		fmt.Println("ok")
	case "insert":
		ok, err := table.Insert(ctx, nil, rec)
		if err != nil {
			fatal(err)
		}
		fmt.Println(ok)
	case "remove":
		ok, err := table.Remove(ctx, nil, rec)
		if err != nil {
			fatal(err)
		}
		fmt.Println(ok)
	default:
		usage()
	}
}

func parseFields(args []string) (*novagrid.Tuple, error) {
	rec := novagrid.NewTuple()
	for _, arg := range args {
		name, spec, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("bad field %q, want name=type:value", arg)
		}
		typ, raw, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("bad field %q, want name=type:value", arg)
		}
		v, err := parseValue(typ, raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		rec.Set(name, v)
	}
	return rec, nil
}

func parseValue(typ, raw string) (any, error) {
	switch typ {
	case "int8", "int16", "int32", "int64":
		bits, _ := strconv.Atoi(strings.TrimPrefix(typ, "int"))
		n, err := strconv.ParseInt(raw, 10, bits)
		if err != nil {
			return nil, err
		}
		switch bits {
		case 8:
			return int8(n), nil
		case 16:
			return int16(n), nil
		case 32:
			return int32(n), nil
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(raw, 32)
		return float32(f), err
	case "double":
		return strconv.ParseFloat(raw, 64)
	case "uuid":
		return uuid.Parse(raw)
	case "string":
		return raw, nil
	case "bytes":
		return hex.DecodeString(raw)
	}
	return nil, fmt.Errorf("unknown type %q", typ)
}

func setupLog(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gridctl [-config file] [-timeout d] <get|upsert|insert|remove> <table> [name=type:value ...]")
	os.Exit(2)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "gridctl:", err)
	os.Exit(1)
}
