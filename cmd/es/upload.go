package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/gallery"
)

func (c maincmd) upload(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		name     = fs.String("name", "", "filename to record (default: base name of the input file)")
		mimeType = fs.String("mime", "", "MIME type (default: sniffed from the content)")
		tags     = fs.String("tags", "", "comma-separated tags")
		custom   = make(gallery.CustomAnnotations)
	)
	fs.Func("a", "custom annotation KEY=VALUE (repeatable)", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("annotation %q is not KEY=VALUE", s)
		}
		if _, dup := custom[k]; dup {
			return fmt.Errorf("duplicate annotation %s", k)
		}
		custom[k] = v
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	var (
		blob []byte
		err  error
	)
	switch args := fs.Args(); len(args) {
	case 0:
		blob, err = io.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "reading stdin")
		}
	case 1:
		blob, err = os.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "reading %s", args[0])
		}
		if *name == "" {
			*name = filepath.Base(args[0])
		}
	default:
		return errors.New("too many args")
	}

	res, err := c.svc.Upload(ctx, gallery.Upload{
		Blob:     blob,
		Filename: *name,
		MimeType: *mimeType,
		Tags:     *tags,
		Custom:   custom,
	})
	if err != nil {
		return err
	}

	fmt.Printf("root %s (%d bytes in %d chunks)\n", res.Root, res.OriginalSize, res.Chunks)
	if res.Thumbnail != nil {
		fmt.Printf("thumbnail %s (%d bytes)\n", *res.Thumbnail, res.ThumbnailSize)
	}
	if res.ChunkErr != nil {
		fmt.Fprintf(os.Stderr, "warning: %s\n", res.ChunkErr)
	}
	if res.ThumbnailErr != nil {
		fmt.Fprintf(os.Stderr, "warning: %s\n", res.ThumbnailErr)
	}
	return nil
}

func (c maincmd) fetch(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		out     = fs.String("o", "", "output file (default: stdout)")
		partial = fs.Bool("partial", false, "write what can be recovered of an incomplete blob")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	key, err := oneKey(fs.Args())
	if err != nil {
		return err
	}

	blob, err := c.svc.Fetch(ctx, key)
	if errors.Is(err, es.ErrIncomplete) && *partial {
		fmt.Fprintf(os.Stderr, "warning: %s\n", err)
	} else if err != nil {
		return err
	}

	if *out == "" {
		_, err = os.Stdout.Write(blob.Data)
		return errors.Wrap(err, "writing blob to stdout")
	}
	return errors.Wrapf(os.WriteFile(*out, blob.Data, 0644), "writing %s", *out)
}

func oneKey(args []string) (es.Key, error) {
	if len(args) != 1 {
		return es.Zero, errors.New("need exactly one key")
	}
	return es.ParseKey(args[0])
}
