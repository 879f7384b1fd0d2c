package sync

import (
	"context"
	"encoding/json"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fsnotify/fsnotify"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// bootstrapProgress gates a load behind a closed flag: a load only
// happens once per "open" period, and ResetStep is what reopens it for
// the next pass.
type bootstrapProgress struct {
	closed bool
}

// Bootstrapper loads a static list of peer multiaddrs from disk and seeds
// them directly into a PeerSetProvider's cache, reloading whenever the
// file changes. It exists for the network's bring-up moment, before the
// DHT has enough members for GetClosestPeers to be useful on its own.
type Bootstrapper struct {
	log      log.Logger
	path     string
	watcher  *fsnotify.Watcher
	peers    *PeerSetProvider
	progress bootstrapProgress
}

// NewBootstrapper watches path (a JSON array of peer multiaddr strings,
// e.g. ["/ip4/1.2.3.4/tcp/4010/p2p/Qm..."]) and will seed peers into peers
// on Run.
func NewBootstrapper(path string, peers *PeerSetProvider) (*Bootstrapper, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}
	return &Bootstrapper{
		log:     log.New("module", "bootstrap"),
		path:    path,
		watcher: watcher,
		peers:   peers,
	}, nil
}

// Step loads the bootstrap file once per open period. Calling it again
// before ResetStep reopens the gate is a no-op, mirroring Stage.Step's
// closed-progress short-circuit.
func (b *Bootstrapper) Step(ctx context.Context) error {
	if b.progress.closed {
		return nil
	}
	b.progress.closed = true
	return b.load(ctx)
}

// ResetStep reopens the gate so the next Step reloads the file.
func (b *Bootstrapper) ResetStep() {
	b.progress.closed = false
}

// Run performs an initial load and then reloads on every filesystem
// change to the bootstrap file, until ctx is cancelled.
func (b *Bootstrapper) Run(ctx context.Context) {
	defer b.watcher.Close()

	if err := b.Step(ctx); err != nil {
		b.log.Warn("initial bootstrap peer load failed", "path", b.path, "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			b.ResetStep()
			if err := b.Step(ctx); err != nil {
				b.log.Warn("bootstrap peer reload failed", "path", b.path, "err", err)
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.log.Warn("bootstrap watcher error", "err", err)
		}
	}
}

func (b *Bootstrapper) load(ctx context.Context) error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return err
	}

	var addrs []string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return err
	}

	peers := make(map[peer.ID]struct{})
	for _, raw := range addrs {
		maddr, err := multiaddr.NewMultiaddr(raw)
		if err != nil {
			b.log.Warn("invalid bootstrap multiaddr", "addr", raw, "err", err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			b.log.Warn("bootstrap multiaddr missing peer id", "addr", raw, "err", err)
			continue
		}
		peers[info.ID] = struct{}{}
	}

	b.log.Info("loaded bootstrap peers", "count", len(peers), "path", b.path)
	b.peers.Seed(peers)
	return nil
}
