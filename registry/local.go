package registry

import (
	"context"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/compression"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/metadata"
	"github.com/ruteri/compressed-tree-registry/pda"
	"github.com/ruteri/compressed-tree-registry/program"
)

// Deploy installs the registry program at programID on l, together with the compression
// and collection programs it calls.
func Deploy(ctx context.Context, l *ledger.Ledger, programID interfaces.Pubkey, opts program.Options) error {
	if programID.IsZero() {
		programID = pda.DefaultRegistryProgramID
	}

	collections := metadata.New()
	engine := compression.NewEngine(collections)
	if err := engine.Deploy(ctx, l); err != nil {
		return err
	}

	p, err := program.New(opts, engine, collections)
	if err != nil {
		return err
	}
	if err := l.Deploy(ctx, programID, p); err != nil {
		return fmt.Errorf("deploy registry: %w", err)
	}
	return nil
}

// LocalOptions configure a self-contained registry.
type LocalOptions struct {
	Client  Options
	Program program.Options

	// Ledger is opened in memory when its Path is empty.
	Ledger ledger.Options

	// Airdrop funds the payer with this many lamports.
	Airdrop uint64
}

// NewLocal opens a ledger, deploys the registry and returns a client for it.
// The caller owns the returned ledger and must close it.
func NewLocal(ctx context.Context, kms interfaces.KMS, opts LocalOptions) (*Client, *ledger.Ledger, error) {
	l, err := ledger.Open(opts.Ledger)
	if err != nil {
		return nil, nil, err
	}

	if err := Deploy(ctx, l, opts.Client.ProgramID, opts.Program); err != nil {
		l.Close()
		return nil, nil, err
	}

	client, err := NewClient(l, kms, opts.Client)
	if err != nil {
		l.Close()
		return nil, nil, err
	}

	if opts.Airdrop > 0 {
		if err := l.Airdrop(ctx, client.Payer(), opts.Airdrop); err != nil {
			l.Close()
			return nil, nil, fmt.Errorf("fund payer: %w", err)
		}
	}
	return client, l, nil
}
