package swapd

import (
	"context"
	"fmt"
	"io"

	"github.com/highwayswap/highway/settledb"
	"github.com/lightningnetwork/lnd/clock"
)

// view prints all swaps currently in the settlement journal.
func view(config *Config, w io.Writer) error {
	store, err := openDatabase(config, clock.NewDefaultClock())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := viewTransfers(store, w); err != nil {
		return err
	}

	return viewResults(store, w)
}

func viewTransfers(store settledb.Store, w io.Writer) error {
	transfers, err := store.FetchTransfers(context.Background())
	if err != nil {
		return err
	}

	for _, t := range transfers {
		fmt.Fprintf(w, "OUT %v\n", t.ID)
		fmt.Fprintf(w, "   Route: %v -> %v, sequence %v, nonce %v\n",
			t.SourceChain, t.TargetChain, t.Sequence, t.Nonce)
		fmt.Fprintf(w, "   Sender: %v\n", t.Sender)
		fmt.Fprintf(w, "   Recipient: %v\n", t.Recipient)
		fmt.Fprintf(w, "   Amt in: %v, refunded: %v\n",
			formatAmount(t.AmountIn), formatAmount(t.Refunded))
		fmt.Fprintf(w, "   Bridged: %v, relayer fee: %v\n",
			formatAmount(t.BridgeAmount),
			formatAmount(t.RelayerFee))
		fmt.Fprintf(w, "   Payload: %x\n", t.Payload)
		fmt.Fprintln(w)
	}

	return nil
}

func viewResults(store settledb.Store, w io.Writer) error {
	results, err := store.FetchResults(context.Background())
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Fprintf(w, "IN %v\n", r.MessageID)
		fmt.Fprintf(w, "   From: %v, outcome: %v\n", r.FromChain,
			r.Outcome)
		fmt.Fprintf(w, "   Recipient: %v, caller: %v\n", r.Recipient,
			r.Caller)
		fmt.Fprintf(w, "   Asset: %v, amt: %v, change: %v\n", r.Asset,
			formatAmount(r.Amount), formatAmount(r.Change))
		fmt.Fprintf(w, "   Released: %v, fee paid: %v\n",
			formatAmount(r.Released), formatAmount(r.FeePaid))
		if r.TradeErr != nil {
			fmt.Fprintf(w, "   Trade error: %v\n", r.TradeErr)
		}
		for i, state := range r.Path {
			fmt.Fprintf(w, "   Update %v, State: %v\n", i, state)
		}
		fmt.Fprintln(w)
	}

	return nil
}
