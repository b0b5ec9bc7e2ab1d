package main

import (
	"context"
	"fmt"

	"github.com/highwayswap/highway/swapd"
	"github.com/urfave/cli"
)

var infoCommand = cli.Command{
	Name:   "getinfo",
	Usage:  "show the chains of the network and their pools",
	Action: getInfo,
}

func getInfo(ctx *cli.Context) error {
	client := getClient(ctx)

	ctxt, cancel := context.WithTimeout(
		context.Background(), defaultTimeout,
	)
	defer cancel()

	var resp swapd.InfoResponse
	if err := client.get(ctxt, "/v1/info", &resp); err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

var faucetCommand = cli.Command{
	Name:      "faucet",
	Usage:     "mint native asset to an account",
	ArgsUsage: "account amt",
	Flags: []cli.Flag{
		cli.UintFlag{
			Name:  "chain",
			Usage: "the chain id to mint on",
			Value: 2,
		},
	},
	Action: faucet,
}

func faucet(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "faucet")
	}

	args := ctx.Args()
	client := getClient(ctx)

	ctxt, cancel := context.WithTimeout(
		context.Background(), defaultTimeout,
	)
	defer cancel()

	err := client.post(ctxt, "/v1/faucet", &swapd.FaucetRequest{
		Chain:   uint16(ctx.Uint("chain")),
		Account: args[0],
		Amount:  args[1],
	}, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Sent %v to %v\n", args[1], args[0])
	return nil
}

var balanceCommand = cli.Command{
	Name:      "balance",
	Usage:     "show the balances of an account on a chain",
	ArgsUsage: "chain account",
	Action:    balance,
}

func balance(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "balance")
	}

	args := ctx.Args()
	client := getClient(ctx)

	ctxt, cancel := context.WithTimeout(
		context.Background(), defaultTimeout,
	)
	defer cancel()

	var resp swapd.BalanceResponse
	path := fmt.Sprintf("/v1/balances/%s/%s", args[0], args[1])
	if err := client.get(ctxt, path, &resp); err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}
