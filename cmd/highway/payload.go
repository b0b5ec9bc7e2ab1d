package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/swapd"
	"github.com/holiman/uint256"
	"github.com/urfave/cli"
)

var versionFlag = cli.UintFlag{
	Name:  "version",
	Usage: "the payload layout version, 2 or 3",
	Value: uint(payload.V3),
}

var payloadCommand = cli.Command{
	Name:  "payload",
	Usage: "encode and decode transfer payloads offline",
	Subcommands: []cli.Command{
		decodePayloadCommand,
		encodePayloadCommand,
	},
}

var decodePayloadCommand = cli.Command{
	Name:      "decode",
	Usage:     "decode a hex encoded payload",
	ArgsUsage: "hex",
	Flags:     []cli.Flag{versionFlag},
	Action:    decodePayload,
}

var encodePayloadCommand = cli.Command{
	Name:      "encode",
	Usage:     "encode a payload",
	ArgsUsage: "recipient",
	Description: `
	Encodes a payload for the given recipient. Without --asset_out only the
	recipient is encoded. Amounts are in base units.`,
	Flags: []cli.Flag{
		versionFlag,
		cli.StringFlag{
			Name:  "amount",
			Usage: "min output of exact_in, output of exact_out",
		},
		cli.StringFlag{
			Name:  "asset_out",
			Usage: "the asset the recipient receives",
		},
		cli.StringFlag{
			Name:  "pool_asset",
			Usage: "the bridge asset of the destination chain",
		},
		cli.Uint64Flag{
			Name:  "deadline",
			Usage: "unix timestamp after which the trade fails",
		},
		cli.UintFlag{
			Name:  "pool_fee",
			Usage: "the fee tier of the destination pool",
			Value: 3000,
		},
		modeFlag,
		cli.BoolFlag{
			Name:  "token",
			Usage: "mark the destination leg as a token leg (v3)",
		},
	},
	Action: encodePayload,
}

// payloadJSON is the printable form of a decoded payload.
type payloadJSON struct {
	Version   uint8  `json:"version"`
	Length    int    `json:"length"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount,omitempty"`
	AssetOut  string `json:"asset_out,omitempty"`
	PoolAsset string `json:"pool_asset,omitempty"`
	Deadline  string `json:"deadline,omitempty"`
	PoolFee   uint32 `json:"pool_fee,omitempty"`
	TradeMode string `json:"trade_mode,omitempty"`
	LegKind   string `json:"leg_kind,omitempty"`
}

func getCodec(ctx *cli.Context) (*payload.Codec, error) {
	return payload.NewCodec(payload.Version(ctx.Uint("version")))
}

func decodePayload(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "decode")
	}

	codec, err := getCodec(ctx)
	if err != nil {
		return err
	}

	raw, err := hex.DecodeString(
		strings.TrimPrefix(ctx.Args().First(), "0x"),
	)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}

	p, err := codec.Decode(raw)
	if err != nil {
		return err
	}

	printRespJSON(marshalPayload(codec.Version(), len(raw), p))
	return nil
}

func marshalPayload(version payload.Version, length int,
	p *payload.Payload) *payloadJSON {

	resp := &payloadJSON{
		Version:   uint8(version),
		Length:    length,
		Recipient: p.Recipient.String(),
	}
	if p.RecipientOnly() {
		return resp
	}

	swap := p.Swap
	resp.Amount = swap.Amount.Dec()
	resp.AssetOut = swap.AssetOut.Hex()
	resp.PoolAsset = swap.PoolAsset.Hex()
	resp.Deadline = swap.Deadline.Dec()
	resp.PoolFee = swap.PoolFee
	resp.TradeMode = swap.TradeMode.String()
	if version == payload.V3 {
		resp.LegKind = swap.LegKind.String()
	}

	return resp
}

func encodePayload(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "encode")
	}

	codec, err := getCodec(ctx)
	if err != nil {
		return err
	}

	p, err := parsePayload(ctx, codec.Version())
	if err != nil {
		return err
	}

	raw, err := codec.Encode(p)
	if err != nil {
		return err
	}

	fmt.Println(hex.EncodeToString(raw))
	return nil
}

// parsePayload builds a payload from the arguments of the encode command.
func parsePayload(ctx *cli.Context, version payload.Version) (
	*payload.Payload, error) {

	recipient, err := parseRecipient(ctx.Args().First())
	if err != nil {
		return nil, err
	}

	p := &payload.Payload{
		Recipient: recipient,
	}
	if !ctx.IsSet("asset_out") {
		return p, nil
	}

	mode, err := swapd.ParseTradeMode(ctx.String("mode"))
	if err != nil {
		return nil, err
	}

	swap := &payload.Instructions{
		AssetOut:  common.HexToAddress(ctx.String("asset_out")),
		PoolAsset: common.HexToAddress(ctx.String("pool_asset")),
		PoolFee:   uint32(ctx.Uint("pool_fee")),
		TradeMode: mode,
	}
	swap.Deadline.SetUint64(ctx.Uint64("deadline"))

	if amt := ctx.String("amount"); amt != "" {
		amount, err := uint256.FromDecimal(amt)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %v: %w", amt,
				err)
		}
		swap.Amount = *amount
	}

	if version == payload.V3 {
		swap.LegKind = payload.LegKindNative
		if ctx.Bool("token") {
			swap.LegKind = payload.LegKindToken
		}
	}

	p.Swap = swap

	return p, nil
}

// parseRecipient accepts a 20 byte address or a 32 byte recipient in hex.
func parseRecipient(s string) (payload.Recipient, error) {
	var r payload.Recipient

	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return r, fmt.Errorf("invalid recipient: %w", err)
	}

	switch len(raw) {
	case common.AddressLength:
		return payload.RecipientFromAddress(
			common.BytesToAddress(raw),
		), nil

	case len(r):
		copy(r[:], raw)
		return r, nil

	default:
		return r, fmt.Errorf("invalid recipient length %d", len(raw))
	}
}
