package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"
)

func (c maincmd) resize(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		width  = fs.Int("w", 0, "width (0 to preserve aspect ratio)")
		height = fs.Int("h", 0, "height (0 to preserve aspect ratio)")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	key, err := oneKey(fs.Args())
	if err != nil {
		return err
	}
	art, err := c.svc.AddResize(ctx, key, *width, *height)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%dx%d, %d bytes)\n", art.Key, art.Width, art.Height, art.Size)
	return nil
}

func (c maincmd) delete(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	key, err := oneKey(fs.Args())
	if err != nil {
		return err
	}
	n, err := c.svc.Delete(ctx, key)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d entities\n", n)
	return nil
}
