package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/ruteri/compressed-tree-registry/api"
	"github.com/ruteri/compressed-tree-registry/api/clients"
	"github.com/ruteri/compressed-tree-registry/cmd/flags"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/kms"
	"github.com/urfave/cli/v2"
)

var flagTree *cli.StringFlag = &cli.StringFlag{
	Name:     "tree",
	Required: true,
	Usage:    "base58 address of the merkle tree",
}
var flagLabel *cli.StringFlag = &cli.StringFlag{
	Name:  "label",
	Usage: "key derivation label, the server picks one if empty",
}
var flagReceiver *cli.StringFlag = &cli.StringFlag{
	Name:  "receiver",
	Usage: "base58 address refunded with the state account rent, the server payer if empty",
}
var flagMaxDepth *cli.UintFlag = &cli.UintFlag{
	Name:  "max-depth",
	Value: 14,
	Usage: "tree depth, the tree holds 2^depth leaves",
}
var flagMaxBufferSize *cli.UintFlag = &cli.UintFlag{
	Name:  "max-buffer-size",
	Value: 64,
	Usage: "number of concurrent changes the tree tolerates",
}
var flagCanopyDepth *cli.UintFlag = &cli.UintFlag{
	Name:  "canopy-depth",
	Value: 0,
	Usage: "number of upper tree levels cached on chain",
}
var flagOwner *cli.StringFlag = &cli.StringFlag{
	Name:     "owner",
	Required: true,
	Usage:    "base58 address of the leaf owner",
}
var flagDelegate *cli.StringFlag = &cli.StringFlag{
	Name:  "delegate",
	Usage: "base58 address of the leaf delegate, the owner if empty",
}
var flagName *cli.StringFlag = &cli.StringFlag{
	Name:     "name",
	Required: true,
	Usage:    "name of the asset",
}
var flagSymbol *cli.StringFlag = &cli.StringFlag{
	Name:  "symbol",
	Usage: "symbol of the asset",
}
var flagURI *cli.StringFlag = &cli.StringFlag{
	Name:  "uri",
	Usage: "off-chain metadata URI, see upload-metadata",
}
var flagSellerFee *cli.UintFlag = &cli.UintFlag{
	Name:  "seller-fee-bps",
	Value: 0,
	Usage: "royalty in basis points",
}
var flagCreator *cli.StringSliceFlag = &cli.StringSliceFlag{
	Name:  "creator",
	Usage: "creator as <base58 address>:<share>, repeatable",
}
var flagCollection *cli.StringFlag = &cli.StringFlag{
	Name:  "collection",
	Usage: "base58 collection mint to mint into",
}
var flagSized *cli.BoolFlag = &cli.BoolFlag{
	Name:  "sized",
	Value: true,
	Usage: "track the number of verified items of the collection",
}
var flagMint *cli.StringFlag = &cli.StringFlag{
	Name:     "mint",
	Required: true,
	Usage:    "base58 collection mint",
}
var flagSignature *cli.StringFlag = &cli.StringFlag{
	Name:     "signature",
	Required: true,
	Usage:    "transaction signature",
}
var flagContentType *cli.StringFlag = &cli.StringFlag{
	Name:  "type",
	Value: interfaces.LeafMetadataType.String(),
	Usage: "document type: leaf or collection",
}
var flagFile *cli.StringFlag = &cli.StringFlag{
	Name:     "file",
	Required: true,
	Usage:    "path of the JSON document, - for stdin",
}

var flagSeed *cli.StringFlag = &cli.StringFlag{
	Name:     "seed",
	Required: true,
	Usage:    "hex-encoded 32-byte KMS seed to split",
}
var flagShares *cli.IntFlag = &cli.IntFlag{
	Name:  "shares",
	Value: 5,
	Usage: "number of shares to produce",
}
var flagThreshold *cli.IntFlag = &cli.IntFlag{
	Name:  "threshold",
	Value: 3,
	Usage: "number of shares required to reconstruct the seed",
}

const usage string = `Operate a compressed tree registry server.

Trees, mints and collections are signed by the server's keys; this tool only
builds the requests and prints the JSON responses.`

func main() {
	app := &cli.App{
		Name:  "registry-client",
		Usage: usage,
		Flags: []cli.Flag{flags.ServerAddrFlag},
		Commands: []*cli.Command{
			{
				Name:  "state",
				Usage: "Print the registry state",
				Action: func(cCtx *cli.Context) error {
					return printResult(newClient(cCtx).State(cCtx.Context))
				},
			},
			{
				Name:  "init",
				Usage: "Initialize the registry state",
				Action: func(cCtx *cli.Context) error {
					return printResult(newClient(cCtx).Initialize(cCtx.Context))
				},
			},
			{
				Name:  "close",
				Usage: "Close the registry state account",
				Flags: []cli.Flag{flagReceiver},
				Action: func(cCtx *cli.Context) error {
					receiver, err := optionalPubkey(cCtx, flagReceiver)
					if err != nil {
						return err
					}
					return printResult(newClient(cCtx).CloseStateAccount(cCtx.Context, receiver))
				},
			},
			{
				Name:  "create-tree",
				Usage: "Allocate a merkle tree and record it in the registry",
				Flags: []cli.Flag{flagLabel, flagMaxDepth, flagMaxBufferSize, flagCanopyDepth},
				Action: func(cCtx *cli.Context) error {
					return printResult(newClient(cCtx).CreateTree(cCtx.Context, &api.CreateTreeRequest{
						Label:         cCtx.String(flagLabel.Name),
						MaxDepth:      uint32(cCtx.Uint(flagMaxDepth.Name)),
						MaxBufferSize: uint32(cCtx.Uint(flagMaxBufferSize.Name)),
						CanopyDepth:   uint32(cCtx.Uint(flagCanopyDepth.Name)),
					}))
				},
			},
			{
				Name:  "tree",
				Usage: "Print a merkle tree account",
				Flags: []cli.Flag{flagTree},
				Action: func(cCtx *cli.Context) error {
					tree, err := requiredPubkey(cCtx, flagTree)
					if err != nil {
						return err
					}
					return printResult(newClient(cCtx).Tree(cCtx.Context, tree))
				},
			},
			{
				Name:  "mint",
				Usage: "Mint a leaf into a registered tree",
				Flags: []cli.Flag{
					flagTree, flagOwner, flagDelegate, flagName, flagSymbol, flagURI,
					flagSellerFee, flagCreator, flagCollection,
				},
				Action: func(cCtx *cli.Context) error {
					tree, err := requiredPubkey(cCtx, flagTree)
					if err != nil {
						return err
					}
					req, err := mintRequest(cCtx)
					if err != nil {
						return err
					}
					return printResult(newClient(cCtx).Mint(cCtx.Context, tree, req))
				},
			},
			{
				Name:  "create-collection",
				Usage: "Create a collection mintable by a tree",
				Flags: []cli.Flag{flagLabel, flagTree, flagName, flagSymbol, flagURI, flagSized},
				Action: func(cCtx *cli.Context) error {
					tree, err := requiredPubkey(cCtx, flagTree)
					if err != nil {
						return err
					}
					return printResult(newClient(cCtx).CreateCollection(cCtx.Context, &api.CreateCollectionRequest{
						Label:  cCtx.String(flagLabel.Name),
						Tree:   tree,
						Name:   cCtx.String(flagName.Name),
						Symbol: cCtx.String(flagSymbol.Name),
						URI:    cCtx.String(flagURI.Name),
						Sized:  cCtx.Bool(flagSized.Name),
					}))
				},
			},
			{
				Name:  "collection",
				Usage: "Print a collection",
				Flags: []cli.Flag{flagMint},
				Action: func(cCtx *cli.Context) error {
					mint, err := requiredPubkey(cCtx, flagMint)
					if err != nil {
						return err
					}
					return printResult(newClient(cCtx).Collection(cCtx.Context, mint))
				},
			},
			{
				Name:  "tx",
				Usage: "Print a transaction receipt",
				Flags: []cli.Flag{flagSignature},
				Action: func(cCtx *cli.Context) error {
					return printResult(newClient(cCtx).Transaction(cCtx.Context, cCtx.String(flagSignature.Name)))
				},
			},
			{
				Name:  "leaf",
				Usage: "Recover the leaf minted by a transaction",
				Flags: []cli.Flag{flagSignature, flagTree},
				Action: func(cCtx *cli.Context) error {
					tree, err := requiredPubkey(cCtx, flagTree)
					if err != nil {
						return err
					}
					return printResult(newClient(cCtx).RecoverLeaf(cCtx.Context, cCtx.String(flagSignature.Name), tree))
				},
			},
			{
				Name:  "upload-metadata",
				Usage: "Publish an off-chain metadata document",
				Flags: []cli.Flag{flagContentType, flagFile},
				Action: func(cCtx *cli.Context) error {
					contentType, err := interfaces.ParseContentType(cCtx.String(flagContentType.Name))
					if err != nil {
						return err
					}
					doc, err := readFile(cCtx.String(flagFile.Name))
					if err != nil {
						return err
					}
					return printResult(newClient(cCtx).UploadMetadata(cCtx.Context, contentType, doc))
				},
			},
			{
				Name:  "split-seed",
				Usage: "Split a KMS seed into Shamir shares for the server's --kms-seed-share flags",
				Flags: []cli.Flag{flagSeed, flagShares, flagThreshold},
				Action: func(cCtx *cli.Context) error {
					seed, err := hex.DecodeString(cCtx.String(flagSeed.Name))
					if err != nil {
						return fmt.Errorf("invalid seed: %w", err)
					}
					k, shares, err := kms.NewShamirKMS(seed, cCtx.Int(flagThreshold.Name), cCtx.Int(flagShares.Name))
					if err != nil {
						return err
					}
					payer, err := k.PayerKey()
					if err != nil {
						return err
					}

					encoded := make([]string, len(shares))
					for i, share := range shares {
						encoded[i] = hex.EncodeToString(share)
					}
					return printResult(map[string]any{
						"payer":     payer.PublicKey(),
						"threshold": cCtx.Int(flagThreshold.Name),
						"shares":    encoded,
					}, nil)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) *clients.RegistryClient {
	return &clients.RegistryClient{ServerAddr: cCtx.String(flags.ServerAddrFlag.Name)}
}

func mintRequest(cCtx *cli.Context) (*api.MintRequest, error) {
	owner, err := requiredPubkey(cCtx, flagOwner)
	if err != nil {
		return nil, err
	}
	delegate, err := optionalPubkey(cCtx, flagDelegate)
	if err != nil {
		return nil, err
	}
	collection, err := optionalPubkey(cCtx, flagCollection)
	if err != nil {
		return nil, err
	}

	creators := []interfaces.Creator{}
	for _, c := range cCtx.StringSlice(flagCreator.Name) {
		creator, err := parseCreator(c)
		if err != nil {
			return nil, err
		}
		creators = append(creators, creator)
	}

	return &api.MintRequest{
		LeafOwner:    owner,
		LeafDelegate: delegate,
		Metadata: interfaces.MetadataArgs{
			Name:                 cCtx.String(flagName.Name),
			Symbol:               cCtx.String(flagSymbol.Name),
			URI:                  cCtx.String(flagURI.Name),
			SellerFeeBasisPoints: uint16(cCtx.Uint(flagSellerFee.Name)),
			Creators:             creators,
		},
		CollectionMint: collection,
	}, nil
}

func parseCreator(s string) (interfaces.Creator, error) {
	address, share, ok := strings.Cut(s, ":")
	if !ok {
		return interfaces.Creator{}, fmt.Errorf("invalid creator %q: expected <address>:<share>", s)
	}
	key, err := interfaces.NewPubkeyFromBase58(address)
	if err != nil {
		return interfaces.Creator{}, fmt.Errorf("invalid creator address: %w", err)
	}
	parsedShare, err := strconv.ParseUint(share, 10, 8)
	if err != nil {
		return interfaces.Creator{}, fmt.Errorf("invalid creator share: %w", err)
	}
	return interfaces.Creator{Address: key, Share: uint8(parsedShare)}, nil
}

func requiredPubkey(cCtx *cli.Context, flag *cli.StringFlag) (interfaces.Pubkey, error) {
	key, err := interfaces.NewPubkeyFromBase58(cCtx.String(flag.Name))
	if err != nil {
		return interfaces.Pubkey{}, fmt.Errorf("invalid --%s: %w", flag.Name, err)
	}
	return key, nil
}

func optionalPubkey(cCtx *cli.Context, flag *cli.StringFlag) (*interfaces.Pubkey, error) {
	if cCtx.String(flag.Name) == "" {
		return nil, nil
	}
	key, err := requiredPubkey(cCtx, flag)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printResult(result any, err error) error {
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
