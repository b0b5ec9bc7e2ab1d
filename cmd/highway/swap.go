package main

import (
	"context"
	"fmt"
	"time"

	"github.com/highwayswap/highway"
	"github.com/highwayswap/highway/swapd"
	"github.com/urfave/cli"
)

var (
	fromFlag = cli.UintFlag{
		Name:  "from",
		Usage: "the chain id the swap starts on",
		Value: 2,
	}

	modeFlag = cli.StringFlag{
		Name: "mode",
		Usage: "exact_in to sell the amount, exact_out to buy " +
			"the amount",
		Value: "exact_in",
	}

	relayerFeeFlag = cli.StringFlag{
		Name:  "relayer_fee",
		Usage: "the bridge asset amount paid to the relayer",
		Value: "0.01",
	}
)

var quoteCommand = cli.Command{
	Name:        "quote",
	Usage:       "get a quote for a native to native swap",
	ArgsUsage:   "amt",
	Description: "Allows to determine the amounts of a swap up front",
	Flags:       []cli.Flag{fromFlag, modeFlag, relayerFeeFlag},
	Action:      quote,
}

func quote(ctx *cli.Context) error {
	// Show command help if the incorrect number arguments was provided.
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "quote")
	}

	client := getClient(ctx)

	ctxt, cancel := context.WithTimeout(
		context.Background(), defaultTimeout,
	)
	defer cancel()

	var resp swapd.QuoteResponse
	err := client.post(ctxt, "/v1/quote", &swapd.QuoteRequest{
		From:       uint16(ctx.Uint("from")),
		Mode:       ctx.String("mode"),
		Amount:     ctx.Args().First(),
		RelayerFee: ctx.String("relayer_fee"),
	}, &resp)
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

var swapCommand = cli.Command{
	Name:      "swap",
	Usage:     "swap the native asset of one chain for the other's",
	ArgsUsage: "sender recipient amt",
	Description: `
	Sells or buys amt of the native asset, bridging through the stable
	asset both chains share. If the trade on the target chain fails, the
	recipient receives the bridged asset instead.`,
	Flags: []cli.Flag{
		fromFlag, modeFlag, relayerFeeFlag,
		cli.UintFlag{
			Name:  "slippage_bps",
			Usage: "the tolerated price movement in basis points",
			Value: 50,
		},
		cli.DurationFlag{
			Name:  "expiry",
			Usage: "how long both legs of the swap may take",
			Value: highway.DefaultExpiry,
		},
		cli.BoolFlag{
			Name:  "wait",
			Usage: "wait for the swap to settle",
		},
	},
	Action: swap,
}

func swap(ctx *cli.Context) error {
	// Show command help if the incorrect number arguments was provided.
	if ctx.NArg() != 3 {
		return cli.ShowCommandHelp(ctx, "swap")
	}

	args := ctx.Args()
	expiry := ctx.Duration("expiry")
	if expiry < time.Second {
		return fmt.Errorf("expiry of %v too short", expiry)
	}

	client := getClient(ctx)

	// A waiting swap is bounded by its expiry on the daemon side.
	ctxt, cancel := context.WithTimeout(
		context.Background(), expiry+defaultTimeout,
	)
	defer cancel()

	var resp swapd.SwapStatus
	err := client.post(ctxt, "/v1/swaps", &swapd.SwapRequest{
		From:          uint16(ctx.Uint("from")),
		Sender:        args[0],
		Recipient:     args[1],
		Mode:          ctx.String("mode"),
		Amount:        args[2],
		RelayerFee:    ctx.String("relayer_fee"),
		SlippageBps:   uint32(ctx.Uint("slippage_bps")),
		ExpirySeconds: uint32(expiry / time.Second),
		Wait:          ctx.Bool("wait"),
	}, &resp)
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

var listSwapsCommand = cli.Command{
	Name:   "listswaps",
	Usage:  "list all swaps in the settlement journal",
	Action: listSwaps,
}

func listSwaps(ctx *cli.Context) error {
	client := getClient(ctx)

	ctxt, cancel := context.WithTimeout(
		context.Background(), defaultTimeout,
	)
	defer cancel()

	var resp swapd.SwapsResponse
	if err := client.get(ctxt, "/v1/swaps", &resp); err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

var swapInfoCommand = cli.Command{
	Name:      "swapinfo",
	Usage:     "show the status of a swap",
	ArgsUsage: "id",
	Action:    swapInfo,
}

func swapInfo(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "swapinfo")
	}

	client := getClient(ctx)

	ctxt, cancel := context.WithTimeout(
		context.Background(), defaultTimeout,
	)
	defer cancel()

	var resp swapd.SwapStatus
	err := client.get(ctxt, "/v1/swaps/"+ctx.Args().First(), &resp)
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}
