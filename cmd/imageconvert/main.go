// Command imageconvert converts a PNG/JPEG image into the raw B8G8R8A8
// bitmap format fb.Surface.DrawBitmap expects, for embedding as window
// chrome or icon assets. Adapted from an imageconvert tool,
// which produced ARGB8888 for the original kernel's software renderer;
// this kernel's framebuffer is B8G8R8A8, so the byte order and the
// output header are changed to match.
package main

import (
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: imageconvert <input-image> <output-binary>\n")
		fmt.Fprintf(os.Stderr, "Converts an image to the raw bitmap format fb.Surface.DrawBitmap expects.\n")
		fmt.Fprintf(os.Stderr, "Output format:\n")
		fmt.Fprintf(os.Stderr, "  4 bytes: width (uint32 little-endian)\n")
		fmt.Fprintf(os.Stderr, "  4 bytes: height (uint32 little-endian)\n")
		fmt.Fprintf(os.Stderr, "  width*height*4 bytes: B8G8R8A8 pixel data\n")
	}
	pflag.Parse()

	if pflag.NArg() != 2 {
		pflag.Usage()
		os.Exit(1)
	}

	inputPath := pflag.Arg(0)
	outputPath := pflag.Arg(1)

	file, err := os.Open(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening image: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding image: %v\n", err)
		os.Exit(1)
	}

	bounds := img.Bounds()
	width := uint32(bounds.Dx())
	height := uint32(bounds.Dy())

	fmt.Printf("Image size: %d x %d\n", width, height)

	outFile, err := os.Create(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	if err := binary.Write(outFile, binary.LittleEndian, width); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing width: %v\n", err)
		os.Exit(1)
	}
	if err := binary.Write(outFile, binary.LittleEndian, height); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing height: %v\n", err)
		os.Exit(1)
	}

	pixelCount := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			r8 := uint8(r / 257)
			g8 := uint8(g / 257)
			b8 := uint8(b / 257)
			a8 := uint8(a / 257)

			// fb.Surface's backing store is B8G8R8A8 per pixel.
			pixel := [4]byte{b8, g8, r8, a8}
			if _, err := outFile.Write(pixel[:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing pixel data: %v\n", err)
				os.Exit(1)
			}
			pixelCount++
		}
	}

	fmt.Printf("Wrote %d pixels to %s\n", pixelCount, outputPath)
	fileInfo, _ := os.Stat(outputPath)
	fmt.Printf("Output file size: %d bytes\n", fileInfo.Size())
}
