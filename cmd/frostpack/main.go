// Command frostpack is a thin demo CLI exercising the chunker, multichunk
// container, filter chain, and catalog end to end (pack/unpack/verify),
// intentionally minimal since CLI flag parsing is an out-of-scope
// collaborator for the core (spec §1) — this mirrors diffkeeper's main.go
// cobra-rootCmd shape without reproducing its process-wrapping behavior.
package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/X-Ryl669/frostcore/internal/config"
	"github.com/X-Ryl669/frostcore/internal/digest"
	"github.com/X-Ryl669/frostcore/internal/metrics"
	"github.com/X-Ryl669/frostcore/pkg/catalog"
	"github.com/X-Ryl669/frostcore/pkg/chunk"
	"github.com/X-Ryl669/frostcore/pkg/filter"
	"github.com/X-Ryl669/frostcore/pkg/multichunk"
)

func main() {
	var repoDir string

	rootCmd := &cobra.Command{
		Use:   "frostpack",
		Short: "frostpack - content-defined dedup & streaming compression demo",
		Long: `frostpack exercises the chunker, multichunk container, filter chain, and
catalog as a small repository tool: pack a file into content-addressed
multichunks, unpack a manifest back into a file, or verify one's integrity.`,
	}
	rootCmd.PersistentFlags().StringVar(&repoDir, "repo", "./.frostpack", "Repository directory (catalog + blob store)")

	rootCmd.AddCommand(newPackCmd(&repoDir), newUnpackCmd(&repoDir), newVerifyCmd(&repoDir))

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func openRepo(repoDir string) (*catalog.Catalog, string, error) {
	blobsDir := filepath.Join(repoDir, "blobs")
	if err := os.MkdirAll(blobsDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("frostpack: creating blob store: %w", err)
	}
	cat, err := catalog.Open(filepath.Join(repoDir, "catalog"))
	if err != nil {
		return nil, "", fmt.Errorf("frostpack: opening catalog: %w", err)
	}
	return cat, blobsDir, nil
}

func newPackCmd(repoDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pack <file>",
		Short: "Chunk, pack, and catalog a file, printing its multichunk manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("frostpack: invalid configuration: %w", err)
			}

			cat, blobsDir, err := openRepo(*repoDir)
			if err != nil {
				return err
			}
			defer cat.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("frostpack: opening input: %w", err)
			}
			defer f.Close()

			params := chunk.NewParamsFromAverage(cfg.ChunkAvgBytes)
			params.MinSize = cfg.ChunkMinBytes
			params.MaxSize = cfg.ChunkMaxBytes
			chunker, err := chunk.NewChunker(f, params)
			if err != nil {
				return fmt.Errorf("frostpack: building chunker: %w", err)
			}

			const filterID = uint16(filter.Compression)
			var manifest []string

			for {
				mc := multichunk.New(cfg.MultichunkMaxBytes, filterID, 0)
				var refs []catalog.ChunkRef

				for {
					offset := mc.DataLen()
					c, ok, err := mc.PackNextChunk(f, chunker)
					if err != nil {
						if errors.Is(err, io.EOF) {
							break
						}
						return fmt.Errorf("frostpack: chunking: %w", err)
					}
					if !ok {
						break // multichunk full; seal what we have and start a new one
					}
					refs = append(refs, catalog.ChunkRef{SHA1: c.Checksum, Offset: offset})
					metrics.ObserveChunk("new", int(c.Size))
				}

				if mc.Count() == 0 {
					break
				}

				sha256, err := sealMultichunk(cat, blobsDir, cfg, mc, refs)
				if err != nil {
					return err
				}
				if err := cat.AddReference(sha256, args[0]); err != nil {
					return fmt.Errorf("frostpack: recording reference: %w", err)
				}
				metrics.ObserveMultichunkSealed(mc.DataLen(), cfg.MultichunkMaxBytes)
				manifest = append(manifest, hex.EncodeToString(sha256[:]))
			}

			for _, id := range manifest {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// sealMultichunk serializes mc's header and data region, pushes the result
// through the compression filter (entropy-gated per SPEC_FULL.md §5),
// writes the stored bytes to the blob store keyed by the plaintext's
// SHA-256, and catalogues the record.
func sealMultichunk(cat *catalog.Catalog, blobsDir string, cfg *config.Config, mc *multichunk.Multichunk, refs []catalog.ChunkRef) ([digest.ContainerSize]byte, error) {
	var buf bytes.Buffer
	if _, err := mc.WriteHeaderTo(&buf); err != nil {
		return [digest.ContainerSize]byte{}, fmt.Errorf("frostpack: serializing header: %w", err)
	}
	if _, err := mc.WriteDataTo(&buf); err != nil {
		return [digest.ContainerSize]byte{}, fmt.Errorf("frostpack: serializing data region: %w", err)
	}
	plain := buf.Bytes()
	sha256 := digest.Container(plain)

	if _, ok, err := cat.GetRecord(sha256); err != nil {
		return sha256, err
	} else if ok {
		return sha256, nil // already catalogued and stored; dedup at the multichunk level
	}

	f := filter.NewCompression(
		filter.WithBlockSize(cfg.BlockSize),
		filter.WithLevel(cfg.CompressionLevel),
		filter.WithEntropyThreshold(cfg.EntropyThreshold),
		filter.WithEntropySource(mc.Entropy),
	)
	stored, err := f.ApplyForward(plain)
	if err != nil {
		return sha256, fmt.Errorf("frostpack: filtering multichunk: %w", err)
	}
	metrics.ObserveBlock(len(stored) < len(plain), len(plain), len(stored))

	blobPath := filepath.Join(blobsDir, hex.EncodeToString(sha256[:]))
	if err := os.WriteFile(blobPath, stored, 0o644); err != nil {
		return sha256, fmt.Errorf("frostpack: writing blob: %w", err)
	}

	if _, _, err := cat.PutMultichunk(sha256, mc.FilterListID(), mc.Tag(), len(stored), refs); err != nil {
		return sha256, fmt.Errorf("frostpack: cataloguing multichunk: %w", err)
	}
	return sha256, nil
}

func loadMultichunk(repoDir, idHex string) (*multichunk.Multichunk, [digest.ContainerSize]byte, error) {
	var sha256 [digest.ContainerSize]byte
	raw, err := hex.DecodeString(idHex)
	if err != nil || len(raw) != digest.ContainerSize {
		return nil, sha256, fmt.Errorf("frostpack: %q is not a valid multichunk SHA-256", idHex)
	}
	copy(sha256[:], raw)

	cat, blobsDir, err := openRepo(repoDir)
	if err != nil {
		return nil, sha256, err
	}
	defer cat.Close()

	rec, ok, err := cat.GetRecord(sha256)
	if err != nil {
		return nil, sha256, err
	}
	if !ok {
		return nil, sha256, fmt.Errorf("frostpack: %s is not in the catalog", idHex)
	}

	stored, err := os.ReadFile(filepath.Join(blobsDir, idHex))
	if err != nil {
		return nil, sha256, fmt.Errorf("frostpack: reading blob: %w", err)
	}

	f := filter.NewCompression()
	plain, err := f.ApplyReverse(stored)
	if err != nil {
		return nil, sha256, fmt.Errorf("frostpack: reversing filter: %w", err)
	}

	r := bytes.NewReader(plain)
	mc, err := multichunk.LoadHeaderFrom(r)
	if err != nil {
		return nil, sha256, fmt.Errorf("frostpack: loading header: %w", err)
	}
	if err := mc.LoadDataFrom(r); err != nil {
		return nil, sha256, fmt.Errorf("frostpack: loading data region: %w", err)
	}
	mc.SetTag(rec.Tag)
	return mc, sha256, nil
}

func newUnpackCmd(repoDir *string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "unpack <multichunk-sha256>...",
		Short: "Reassemble one or more catalogued multichunks into a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("frostpack: creating output: %w", err)
			}
			defer out.Close()

			for _, idHex := range args {
				mc, _, err := loadMultichunk(*repoDir, idHex)
				if err != nil {
					return err
				}
				for i := 0; i < mc.Count(); i++ {
					c, err := mc.Chunk(i)
					if err != nil {
						return fmt.Errorf("frostpack: reading chunk %d: %w", i, err)
					}
					if err := chunk.VerifyIntegrity(c, c.Data); err != nil {
						return fmt.Errorf("frostpack: %s chunk %d: %w", idHex, i, err)
					}
					if _, err := out.Write(c.Data); err != nil {
						return fmt.Errorf("frostpack: writing output: %w", err)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "out.bin", "Output file path")
	return cmd
}

func newVerifyCmd(repoDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <multichunk-sha256>",
		Short: "Rebuild a catalogued multichunk's integrity tree and verify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mc, sha256, err := loadMultichunk(*repoDir, args[0])
			if err != nil {
				return err
			}

			tree, err := multichunk.BuildIntegrityTree(mc)
			if err != nil {
				return fmt.Errorf("frostpack: building integrity tree: %w", err)
			}
			ok, err := tree.Verify()
			if err != nil {
				return fmt.Errorf("frostpack: verifying integrity tree: %w", err)
			}
			if !ok {
				return fmt.Errorf("frostpack: %x: integrity tree failed verification", sha256)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s OK (%d chunks, root %x)\n", args[0], mc.Count(), tree.Root())
			return nil
		},
	}
}
