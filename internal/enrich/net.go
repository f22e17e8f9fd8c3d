package enrich

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// GeneSetFiles maps the bundled gene-set names to their CSV file names. The
// files ship separately from the binary; see LoadNamedNet.
var GeneSetFiles = map[string]string{
	"fazal2019": "fazal2019.csv",
	"xia2019":   "xia2019.csv",
}

// LoadNetCSV reads a gene-set network from CSV. The header must name a
// source, target and weight column; a missing weight column defaults every
// link weight to 1.
func LoadNetCSV(r io.Reader) (Net, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("enrich: read net header: %w", err)
	}
	srcCol, tgtCol, wCol := -1, -1, -1
	for i, name := range header {
		switch name {
		case "source":
			srcCol = i
		case "target":
			tgtCol = i
		case "weight":
			wCol = i
		}
	}
	if srcCol < 0 || tgtCol < 0 {
		return nil, fmt.Errorf("enrich: net header %v lacks source/target columns", header)
	}

	var net Net
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("enrich: read net line %d: %w", line, err)
		}
		link := Link{Source: rec[srcCol], Target: rec[tgtCol], Weight: 1}
		if wCol >= 0 {
			w, err := strconv.ParseFloat(rec[wCol], 64)
			if err != nil {
				return nil, fmt.Errorf("enrich: net line %d: bad weight %q: %w", line, rec[wCol], err)
			}
			link.Weight = w
		}
		net = append(net, link)
	}
	if len(net) == 0 {
		return nil, fmt.Errorf("enrich: net has no links")
	}
	return net, nil
}

// LoadNetFile reads a gene-set network from a CSV file on disk.
func LoadNetFile(path string) (Net, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("enrich: %w", err)
	}
	defer f.Close()
	return LoadNetCSV(f)
}

// LoadNamedNet loads one of the bundled gene-set networks from the given
// data directory.
func LoadNamedNet(dir, name string) (Net, error) {
	fname, ok := GeneSetFiles[name]
	if !ok {
		return nil, fmt.Errorf("enrich: unknown gene set %q", name)
	}
	return LoadNetFile(filepath.Join(dir, fname))
}
