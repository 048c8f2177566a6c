package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"campchain/gateway/client"
)

const usage = `campctl interacts with a campaign node over JSON-RPC.

Usage:
  campctl [-rpc <url>] [-token <bearer>] <command> [arguments]

Commands:
  create       -owner <addr> -verifier <addr> -deposit <amount> -max <n>
  join         -id <id> -wallet <addr> -handle <handle>
  release      -id <id> -participant <addr> -caller <addr>
  get          -id <id>
  info         -id <id>
  participant  -id <id> -wallet <addr>
  list         -owner <addr>
  total
  at           -index <n>
  fee
  balance      -address <addr>
  events       [-offset <n>]
`

func main() {
	rpcURL := flag.String("rpc", "http://localhost:8545", "Node JSON-RPC endpoint")
	token := flag.String("token", os.Getenv("CAMP_RPC_TOKEN"), "Bearer token for mutating calls")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	rpc := client.New(*rpcURL, *token, 15*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, rpc, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, rpc *client.Client, command string, args []string) error {
	switch command {
	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		owner := fs.String("owner", "", "Owner address funding the deposit")
		verifier := fs.String("verifier", "", "Verifier address allowed to release rewards")
		deposit := fs.String("deposit", "", "Deposit amount in base units")
		max := fs.Uint64("max", 0, "Maximum number of participants")
		_ = fs.Parse(args)
		return call(ctx, rpc, "campaign_create", map[string]interface{}{
			"owner":           *owner,
			"verifier":        *verifier,
			"deposit":         *deposit,
			"maxParticipants": *max,
		})
	case "join":
		fs := flag.NewFlagSet("join", flag.ExitOnError)
		id := fs.String("id", "", "Campaign identifier")
		wallet := fs.String("wallet", "", "Participant wallet address")
		handle := fs.String("handle", "", "Participant social handle")
		_ = fs.Parse(args)
		return call(ctx, rpc, "campaign_join", map[string]interface{}{
			"id":     *id,
			"wallet": *wallet,
			"handle": *handle,
		})
	case "release":
		fs := flag.NewFlagSet("release", flag.ExitOnError)
		id := fs.String("id", "", "Campaign identifier")
		participant := fs.String("participant", "", "Participant wallet address")
		caller := fs.String("caller", "", "Caller address (must be the verifier)")
		_ = fs.Parse(args)
		return call(ctx, rpc, "campaign_release", map[string]interface{}{
			"id":          *id,
			"participant": *participant,
			"caller":      *caller,
		})
	case "get":
		fs := flag.NewFlagSet("get", flag.ExitOnError)
		id := fs.String("id", "", "Campaign identifier")
		_ = fs.Parse(args)
		return call(ctx, rpc, "campaign_get", map[string]interface{}{"id": *id})
	case "info":
		fs := flag.NewFlagSet("info", flag.ExitOnError)
		id := fs.String("id", "", "Campaign identifier")
		_ = fs.Parse(args)
		return call(ctx, rpc, "campaign_info", map[string]interface{}{"id": *id})
	case "participant":
		fs := flag.NewFlagSet("participant", flag.ExitOnError)
		id := fs.String("id", "", "Campaign identifier")
		wallet := fs.String("wallet", "", "Participant wallet address")
		_ = fs.Parse(args)
		return call(ctx, rpc, "campaign_participant", map[string]interface{}{
			"id":     *id,
			"wallet": *wallet,
		})
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		owner := fs.String("owner", "", "Owner address")
		_ = fs.Parse(args)
		return call(ctx, rpc, "campaign_listByOwner", map[string]interface{}{"owner": *owner})
	case "total":
		return call(ctx, rpc, "campaign_total", nil)
	case "at":
		fs := flag.NewFlagSet("at", flag.ExitOnError)
		index := fs.Uint64("index", 0, "Registry index")
		_ = fs.Parse(args)
		return call(ctx, rpc, "campaign_atIndex", map[string]interface{}{"index": *index})
	case "fee":
		return call(ctx, rpc, "campaign_feePercent", nil)
	case "balance":
		fs := flag.NewFlagSet("balance", flag.ExitOnError)
		address := fs.String("address", "", "Account address")
		_ = fs.Parse(args)
		return call(ctx, rpc, "camp_getBalance", map[string]interface{}{"address": *address})
	case "events":
		fs := flag.NewFlagSet("events", flag.ExitOnError)
		offset := fs.Uint64("offset", 0, "Event log offset")
		_ = fs.Parse(args)
		return call(ctx, rpc, "camp_getEvents", map[string]interface{}{"offset": *offset})
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func call(ctx context.Context, rpc *client.Client, method string, params interface{}) error {
	var result json.RawMessage
	if err := rpc.Call(ctx, method, params, &result); err != nil {
		return err
	}
	var pretty interface{}
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Println(string(result))
		return nil
	}
	encoded, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
