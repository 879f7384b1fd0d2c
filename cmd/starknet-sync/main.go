// Command starknet-sync drives one of the five peer-agnostic block-sync
// streamers against an in-memory, scripted peer set and reports what came
// back. It exists to demo and smoke-test the sync package without a real
// Starknet network or libp2p swarm to dial into.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	p2psync "github.com/eqlabs/starknet-p2p-sync/sync"
	"github.com/eqlabs/starknet-p2p-sync/sync/fixture"
)

func main() {
	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(isatty.IsTerminal(os.Stderr.Fd())))
	log.Root().SetHandler(log.LvlFilterHandler(log.LvlInfo, handler))

	app := &cli.App{
		Name:  "starknet-sync",
		Usage: "drive the peer-agnostic block-sync core against a scripted peer set",
		Commands: []*cli.Command{
			streamCommand("headers", "stream signed block headers", runHeaders),
			streamCommand("transactions", "stream transactions and receipts", runTransactions),
			streamCommand("state-diffs", "stream per-block state updates", runStateDiffs),
			streamCommand("classes", "stream declared class definitions", runClasses),
			streamCommand("events", "stream emitted events", runEvents),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func streamCommand(name, usage string, action cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "start", Required: true, Usage: "first block number"},
			&cli.Uint64Flag{Name: "stop", Required: true, Usage: "last block number, inclusive"},
			&cli.BoolFlag{Name: "reverse", Usage: "walk from stop down to start"},
			&cli.IntFlag{Name: "peers", Value: 3, Usage: "number of fixture peers to seed, all cooperative"},
			&cli.Uint64Flag{Name: "per-block", Value: 2, Usage: "items per block (ignored by headers)"},
		},
		Action: action,
	}
}

// blockRange reads --start/--stop/--reverse and returns them alongside the
// traversal order they imply.
func blockRange(c *cli.Context) (start, stop p2psync.BlockNumber, reverse bool) {
	return p2psync.BlockNumber(c.Uint64("start")), p2psync.BlockNumber(c.Uint64("stop")), c.Bool("reverse")
}

// blocksInOrder returns every block number from start to stop in the order
// a streamer configured with reverse would visit them.
func blocksInOrder(start, stop p2psync.BlockNumber, reverse bool) []p2psync.BlockNumber {
	var out []p2psync.BlockNumber
	if reverse {
		for b := stop; ; b-- {
			out = append(out, b)
			if b == start {
				break
			}
		}
		return out
	}
	for b := start; ; b++ {
		out = append(out, b)
		if b == stop {
			break
		}
	}
	return out
}

func newDemoTransport(n int) (*fixture.Transport, []string) {
	self := fixture.NewPeerID("self")
	transport := fixture.NewTransport(self)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("peer-%d", i)
		transport.Peer(fixture.NewPeerID(ids[i]))
	}
	return transport, ids
}

func felt(n uint64) p2psync.Felt {
	return *uint256.NewInt(n)
}

func newBar(c *cli.Context, count int, label string) *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return progressbar.DefaultSilent(int64(count), label)
	}
	return progressbar.Default(int64(count), label)
}

func renderTable(header []string, rows [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

func runHeaders(c *cli.Context) error {
	start, stop, reverse := blockRange(c)
	blocks := blocksInOrder(start, stop, reverse)

	transport, peerIDs := newDemoTransport(c.Int("peers"))
	items := make([]p2psync.HeaderResponse, 0, len(blocks))
	for _, b := range blocks {
		items = append(items, fixture.HeaderItem(p2psync.SignedBlockHeader{
			Number:     b,
			Hash:       felt(uint64(b)),
			ParentHash: felt(uint64(b) - 1),
		}))
	}
	for _, id := range peerIDs {
		transport.Peer(fixture.NewPeerID(id)).Headers(items...)
	}

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx := context.Background()
	ch := client.HeaderStream(ctx, start, stop, reverse)

	bar := newBar(c, len(blocks), "headers")
	rows := make([][]string, 0, len(blocks))
	for pd := range ch {
		bar.Add(1)
		rows = append(rows, []string{fmt.Sprint(pd.Data.Number), pd.Peer.String(), pd.Data.Hash.Hex()})
	}
	if err := client.Close(); err != nil {
		return err
	}
	renderTable([]string{"block", "peer", "hash"}, rows)
	return nil
}

func runTransactions(c *cli.Context) error {
	start, stop, reverse := blockRange(c)
	blocks := blocksInOrder(start, stop, reverse)
	perBlock := c.Uint64("per-block")

	transport, peerIDs := newDemoTransport(c.Int("peers"))
	resps := make([]p2psync.TransactionResponse, 0, uint64(len(blocks))*perBlock)
	for _, b := range blocks {
		for i := uint64(0); i < perBlock; i++ {
			resps = append(resps, fixture.TransactionItem(p2psync.TransactionAndReceipt{
				Transaction: p2psync.Transaction{Hash: p2psync.TransactionHash{Felt: felt(uint64(b)*1000 + i)}},
				Receipt:     p2psync.Receipt{TransactionIndex: i},
			}))
		}
	}
	for _, id := range peerIDs {
		transport.Peer(fixture.NewPeerID(id)).Transactions(resps...)
	}

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx := context.Background()
	expectations := make(chan p2psync.TransactionExpectation, 1)
	go func() {
		defer close(expectations)
		for range blocks {
			expectations <- p2psync.TransactionExpectation{Count: perBlock}
		}
	}()
	ch := client.TransactionStream(ctx, start, stop, reverse, expectations)

	bar := newBar(c, len(blocks), "transactions")
	rows := make([][]string, 0, len(blocks))
	block := 0
	for pd := range ch {
		bar.Add(1)
		rows = append(rows, []string{fmt.Sprint(blocks[block]), pd.Peer.String(), fmt.Sprint(len(pd.Data.Transactions))})
		block++
	}
	if err := client.Close(); err != nil {
		return err
	}
	renderTable([]string{"block", "peer", "transactions"}, rows)
	return nil
}

func runStateDiffs(c *cli.Context) error {
	start, stop, reverse := blockRange(c)
	blocks := blocksInOrder(start, stop, reverse)
	perBlock := c.Uint64("per-block")

	transport, peerIDs := newDemoTransport(c.Int("peers"))
	resps := make([]p2psync.StateDiffResponse, 0, uint64(len(blocks))*perBlock)
	for _, b := range blocks {
		for i := uint64(0); i < perBlock; i++ {
			resps = append(resps, fixture.ContractDiffItem(p2psync.WireContractDiff{
				Address: p2psync.ContractAddress{Felt: felt(uint64(b)*1000 + i + 2)},
				Values: []p2psync.WireStorageEntry{
					{Key: p2psync.StorageAddress{Felt: felt(i)}, Value: p2psync.StorageValue{Felt: felt(i + 1)}},
				},
			}))
		}
	}
	for _, id := range peerIDs {
		transport.Peer(fixture.NewPeerID(id)).StateDiffs(resps...)
	}

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx := context.Background()
	expectations := make(chan p2psync.StateDiffExpectation, 1)
	go func() {
		defer close(expectations)
		for range blocks {
			expectations <- p2psync.StateDiffExpectation{Count: perBlock}
		}
	}()
	ch := client.StateDiffStream(ctx, start, stop, reverse, expectations)

	bar := newBar(c, len(blocks), "state-diffs")
	rows := make([][]string, 0, len(blocks))
	block := 0
	for pd := range ch {
		bar.Add(1)
		rows = append(rows, []string{fmt.Sprint(blocks[block]), pd.Peer.String(), fmt.Sprint(len(pd.Data.StateDiff.ContractUpdates))})
		block++
	}
	if err := client.Close(); err != nil {
		return err
	}
	renderTable([]string{"block", "peer", "contracts touched"}, rows)
	return nil
}

func runClasses(c *cli.Context) error {
	start, stop, reverse := blockRange(c)
	blocks := blocksInOrder(start, stop, reverse)
	perBlock := c.Uint64("per-block")

	transport, peerIDs := newDemoTransport(c.Int("peers"))
	resps := make([]p2psync.ClassResponse, 0, uint64(len(blocks))*perBlock)
	for _, b := range blocks {
		for i := uint64(0); i < perBlock; i++ {
			resps = append(resps, fixture.Cairo1Item([]byte(fmt.Sprintf("sierra-%d-%d", b, i))))
		}
	}
	for _, id := range peerIDs {
		transport.Peer(fixture.NewPeerID(id)).Classes(resps...)
	}

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx := context.Background()
	expectations := make(chan p2psync.ClassExpectation, 1)
	go func() {
		defer close(expectations)
		for range blocks {
			expectations <- p2psync.ClassExpectation{Count: perBlock}
		}
	}()
	ch := client.ClassStream(ctx, start, stop, reverse, expectations)

	bar := newBar(c, len(blocks)*int(perBlock), "classes")
	rows := make([][]string, 0)
	for pd := range ch {
		bar.Add(1)
		rows = append(rows, []string{fmt.Sprint(pd.Data.BlockNumber), pd.Peer.String(), fmt.Sprint(len(pd.Data.SierraDefinition))})
	}
	if err := client.Close(); err != nil {
		return err
	}
	renderTable([]string{"block", "peer", "bytes"}, rows)
	return nil
}

func runEvents(c *cli.Context) error {
	start, stop, reverse := blockRange(c)
	blocks := blocksInOrder(start, stop, reverse)
	perBlock := c.Uint64("per-block")

	transport, peerIDs := newDemoTransport(c.Int("peers"))
	resps := make([]p2psync.EventResponse, 0, uint64(len(blocks))*perBlock)
	for _, b := range blocks {
		hash := p2psync.TransactionHash{Felt: felt(uint64(b))}
		for i := uint64(0); i < perBlock; i++ {
			resps = append(resps, fixture.EventItem(hash, p2psync.Event{Raw: []byte(fmt.Sprintf("event-%d", i))}))
		}
	}
	for _, id := range peerIDs {
		transport.Peer(fixture.NewPeerID(id)).Events(resps...)
	}

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx := context.Background()
	expectations := make(chan p2psync.EventsExpectation, 1)
	go func() {
		defer close(expectations)
		for range blocks {
			expectations <- p2psync.EventsExpectation{Count: perBlock}
		}
	}()
	ch := client.EventStream(ctx, start, stop, reverse, expectations)

	bar := newBar(c, len(blocks), "events")
	rows := make([][]string, 0, len(blocks))
	for pd := range ch {
		bar.Add(1)
		rows = append(rows, []string{fmt.Sprint(pd.Data.Block), pd.Peer.String(), fmt.Sprint(len(pd.Data.Transactions))})
	}
	if err := client.Close(); err != nil {
		return err
	}
	renderTable([]string{"block", "peer", "transactions with events"}, rows)
	return nil
}
