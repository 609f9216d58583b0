// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"image"
	"image/color"
	"image/png"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/biggrid/collect"
	"gonum.org/v1/gonum/floats"
)

// grayImage renders a grid as an 8-bit grayscale image, one pixel per
// cell, row r at y = r. Values in [0, 1] map to [0, 255]; grids with
// values outside [0, 1] are first rescaled to span it.
func grayImage(g *collect.Grid) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Cols, g.Rows))
	if len(g.Data) == 0 {
		return img
	}
	lo, hi := floats.Min(g.Data), floats.Max(g.Data)
	scale := func(v float64) float64 { return v }
	if lo < 0 || hi > 1 {
		scale = func(v float64) float64 {
			if hi == lo {
				return 0
			}
			return (v - lo) / (hi - lo)
		}
	}
	for row := 0; row < g.Rows; row++ {
		for col, v := range g.Row(row) {
			img.SetGray(col, row, color.Gray{Y: uint8(scale(v) * 255)})
		}
	}
	return img
}

// writePNG writes the grid as a PNG image to path, which may name any
// file supported by package file.
func writePNG(ctx context.Context, path string, g *collect.Grid) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer errors.CleanUpCtx(ctx, f.Close, &err)
	if err := png.Encode(f.Writer(ctx), grayImage(g)); err != nil {
		return errors.E("encoding png", path, err)
	}
	return nil
}
