// Command benchkernels times one Trotter-Suzuki step per kernel and block
// shape on square periodic lattices.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vmihailenco/msgpack/v5"

	trottersuzuki "github.com/orgnanonana/trotter-suzuki-mpi"
	"github.com/orgnanonana/trotter-suzuki-mpi/gpu"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/cpu"
	"github.com/orgnanonana/trotter-suzuki-mpi/potentials"
)

type benchResult struct {
	Size      int     `msgpack:"size"`
	Kernel    string  `msgpack:"kernel"`
	BlockW    int     `msgpack:"block_w"`
	BlockH    int     `msgpack:"block_h"`
	NsPerStep float64 `msgpack:"ns_per_step"`
}

type report struct {
	Host    string        `msgpack:"host"`
	Time    time.Time     `msgpack:"time"`
	Results []benchResult `msgpack:"results"`
}

func main() {
	var (
		sizeList   = flag.String("sizes", "128,256,512", "comma-separated lattice sizes")
		kernelList = flag.String("kernels", "cpu,gpu,hybrid", "comma-separated kernels")
		blockList  = flag.String("blocks", "8x4,16x8,32x16,64x32", "comma-separated block shapes WxH")
		iters      = flag.Int("iters", 20, "timed steps")
		warmup     = flag.Int("warmup", 2, "warmup steps")
		imagTime   = flag.Bool("imag", false, "time imaginary-time steps")
		emit       = flag.Bool("emit", false, "print the fastest block shape per size and kernel")
		outFile    = flag.String("out", "", "write results as msgpack to file")
	)
	flag.Parse()

	sizes := parseSizes(*sizeList)
	blocks := parseBlocks(*blockList)

	if len(sizes) == 0 || len(blocks) == 0 {
		fmt.Println("no sizes or blocks specified")
		return
	}

	if info, ok := gpu.CurrentBackendInfo(); !ok {
		gpu.RegisterMockBackend()
		fmt.Println("no accelerator backend linked, gpu kernels run on the host mock")
	} else {
		fmt.Printf("accelerator backend: %s\n", info.Name)
	}

	host := cpu.DetectFeatures().String()
	fmt.Printf("host=%s iters=%d warmup=%d imag=%v\n", host, *iters, *warmup, *imagTime)
	fmt.Printf("%6s  %8s  %8s  %14s  %14s\n", "size", "kernel", "block", "ns/step", "cells/s")

	rep := report{Host: host, Time: time.Now().UTC()}

	for _, n := range sizes {
		for _, name := range strings.Split(*kernelList, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}

			results := benchmarkKernel(n, name, blocks, *iters, *warmup, *imagTime)
			if len(results) == 0 {
				continue
			}

			sort.Slice(results, func(i, j int) bool {
				return results[i].NsPerStep < results[j].NsPerStep
			})

			for _, res := range results {
				rate := float64(n*n) / (res.NsPerStep / 1e9)
				fmt.Printf("%6d  %8s  %8s  %14.0f  %14s\n", n, name,
					fmt.Sprintf("%dx%d", res.BlockW, res.BlockH), res.NsPerStep, humanize.SIWithDigits(rate, 2, ""))
			}

			if *emit {
				best := results[0]
				fmt.Printf("trottersuzuki.WithBlockSize(%d, %d) // size %d kernel %s\n", best.BlockW, best.BlockH, n, name)
			}

			rep.Results = append(rep.Results, results...)
		}
	}

	if *outFile != "" {
		if err := writeReport(*outFile, rep); err != nil {
			fmt.Printf("error writing results: %v\n", err)
			return
		}

		fmt.Printf("\nResults written to: %s\n", *outFile)
	}
}

func benchmarkKernel(n int, name string, blocks [][2]int, iters, warmup int, imagTime bool) []benchResult {
	results := make([]benchResult, 0, len(blocks))

	for _, b := range blocks {
		ns, err := timeSteps(n, name, b, iters, warmup, imagTime)
		if err != nil {
			fmt.Printf("%6d  %8s  %5dx%-2d  error: %v\n", n, name, b[0], b[1], err)
			continue
		}

		results = append(results, benchResult{Size: n, Kernel: name, BlockW: b[0], BlockH: b[1], NsPerStep: ns})
	}

	return results
}

func timeSteps(n int, name string, block [2]int, iters, warmup int, imagTime bool) (float64, error) {
	length := float64(n) / 8

	l, err := trottersuzuki.NewLattice(nil, n, length, length, trottersuzuki.WithPeriodic(true, true))
	if err != nil {
		return 0, err
	}

	s, err := trottersuzuki.NewGaussianState(l, trottersuzuki.GaussianProfile{})
	if err != nil {
		return 0, err
	}

	h, err := trottersuzuki.NewHamiltonian(l, trottersuzuki.WithCoupling(1))
	if err != nil {
		return 0, err
	}

	h.InitializePotential(potentials.Harmonic(1, 1))

	solver, err := trottersuzuki.NewSolver(l, s, h, 0.01, name, trottersuzuki.WithBlockSize(block[0], block[1]))
	if err != nil {
		return 0, err
	}
	defer solver.Close()

	if err := solver.Evolve(warmup, imagTime); err != nil {
		return 0, err
	}

	runtime.GC()

	start := time.Now()

	if err := solver.Evolve(iters, imagTime); err != nil {
		return 0, err
	}

	return float64(time.Since(start).Nanoseconds()) / float64(max(iters, 1)), nil
}

func parseSizes(list string) []int {
	parts := strings.Split(list, ",")

	out := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var n int

		_, err := fmt.Sscanf(part, "%d", &n)
		if err != nil || n <= 0 {
			continue
		}

		out = append(out, n)
	}

	return out
}

func parseBlocks(list string) [][2]int {
	var out [][2]int

	for _, part := range strings.Split(list, ",") {
		var w, h int

		_, err := fmt.Sscanf(strings.TrimSpace(part), "%dx%d", &w, &h)
		if err != nil || w <= 0 || h <= 0 {
			continue
		}

		out = append(out, [2]int{w, h})
	}

	return out
}

func writeReport(filename string, rep report) error {
	data, err := msgpack.Marshal(rep)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0o644)
}
