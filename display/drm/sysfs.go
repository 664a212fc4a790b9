package drm

import (
	"io/ioutil"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/linuxdeepin/go-lib/utils"
	"golang.org/x/xerrors"
)

const (
	drmClassDir = "/sys/class/drm"
	devDriDir   = "/dev/dri"
)

var cardReg = regexp.MustCompile(`^card[0-9]+$`)

// FindPrimaryCard returns the device node of the card driving the displays.
// The boot vga card wins, otherwise the first card with connectors.
func FindPrimaryCard() (string, error) {
	card, err := findPrimaryCard(drmClassDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(devDriDir, card), nil
}

func findPrimaryCard(dir string) (string, error) {
	finfos, err := ioutil.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var cards []string
	connectors := make(map[string]int)
	for _, finfo := range finfos {
		name := finfo.Name()
		if cardReg.MatchString(name) {
			cards = append(cards, name)
			continue
		}
		// connectors look like card0-HDMI-A-1
		array := strings.SplitN(name, "-", 2)
		if len(array) == 2 && cardReg.MatchString(array[0]) {
			connectors[array[0]]++
		}
	}
	sort.Strings(cards)
	logger.Debug("drm cards:", cards, connectors)

	var fallback string
	for _, card := range cards {
		if connectors[card] == 0 {
			continue
		}
		bootVga := filepath.Join(dir, card, "device/boot_vga")
		if utils.IsFileExist(bootVga) {
			contents, err := ioutil.ReadFile(bootVga)
			if err == nil && strings.TrimSpace(string(contents)) == "1" {
				return card, nil
			}
		}
		if fallback == "" {
			fallback = card
		}
	}
	if fallback == "" {
		return "", xerrors.Errorf("no display card found in %s", dir)
	}
	return fallback, nil
}
