// Command aether-export converts trained parameters into the quantized
// AS768NUE network file and inspects the result.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"

	"k8s.io/klog/v2"
)

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"export", "quantize trained parameters into a network file", runExport},
	{"inspect", "print the header and tensor table of a network file", runInspect},
	{"bucket", "print the king buckets of a position", runBucket},
	{"eval", "evaluate a position with a network file", runEval},
	{"import", "snapshot a safetensors checkpoint into a badger directory", runImport},
	{"history", "list recorded exports", runHistory},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <command> [command flags]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(out, "  %-8s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			klog.Fatalf("could not create CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			klog.Fatalf("could not start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
		klog.Infof("CPU profiling enabled, writing to %s", *cpuprofile)
	}

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(args); err != nil {
			klog.Errorf("%s: %v", name, err)
			pprof.StopCPUProfile()
			klog.Flush()
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}
