package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	dwarfhelper "dwarflayout/dwarf"
	"dwarflayout/logger"
)

var ErrNoHomeDirectory = errors.New("could not find home directory from $HOME env var")

var log = logger.GetLogger("layout")

// defaultSharedObjectPath is the CoreCLR runtime shipped with the game install
func defaultSharedObjectPath() (string, error) {
	home, ok := os.LookupEnv("HOME")
	if !ok || home == "" {
		return "", ErrNoHomeDirectory
	}
	return filepath.Join(home, ".steam", "steam", "steamapps", "common", "Stardew Valley", "libcoreclr.so"), nil
}

// DwarfHelper prints the layouts of the classes of ipath that match opts
func DwarfHelper(ipath string, opts dwarfhelper.DumpOptions, out io.Writer) error {
	info, err := dwarfhelper.NewDwarfInfo(ipath)
	if err != nil {
		return err
	}
	defer func() {
		if err := info.Close(); err != nil {
			log.Warnf("close %s: %v", ipath, err)
		}
	}()

	index, err := dwarfhelper.NewUnitIndex(info.GetData())
	if err != nil {
		return err
	}
	printed, err := dwarfhelper.Dump(index, opts, out)
	if err != nil {
		return err
	}
	log.Debugf("printed %d classes from %d units of %s", printed, index.Len(), ipath)
	return nil
}
