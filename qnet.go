// Package qnet is a discrete-event simulator of entanglement distribution over lossy
// quantum networks.  A Topology of nodes, ports and fiber channels is built fresh for
// every shot by a factory (chain, star, two-hop, midpoint, or a custom description);
// RunShot generates the entangled pairs, draws a loss outcome for every channel that
// carries a qubit, records the deliveries in a DeliveryLedger, executes the swap plan
// and reads out the end-to-end fidelity.  RunPoint and RunSweep repeat shots over a
// configuration and aggregate success counts and fidelities.  EstimateChain gives the
// closed-form approximation for long chains.
package qnet

// qnet.go has code shared by the configuration layers: the serialization
// helpers, file checks, and the application of channel overrides

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UseYAMLExt is true when the file name extension selects yaml (.yaml, .YAML, .yml, .YML)
func UseYAMLExt(filename string) bool {
	pathExt := path.Ext(filename)
	return pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" || pathExt == ".YML"
}

// writeSerialized stores v to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func writeSerialized(filename string, v any) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if UseYAMLExt(filename) {
		bytes, merr = yaml.Marshal(v)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(v, "", "\t")
	} else {
		return fmt.Errorf("file %s: extension %q selects neither yaml nor json", filename, pathExt)
	}
	if merr != nil {
		return merr
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	_, werr := f.Write(bytes)
	if werr != nil {
		f.Close()
		return werr
	}
	return f.Close()
}

// readSerialized deserializes dict into v.  If dict is empty the file whose name is
// given is read to acquire the bytes.
func readSerialized(filename string, useYAML bool, dict []byte, v any) error {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		fileInfo, err := os.Stat(filename)
		if os.IsNotExist(err) || (err == nil && fileInfo.IsDir()) {
			return fmt.Errorf("file %s does not exist or cannot be read", filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return err
		}
	}

	if useYAML {
		err = yaml.Unmarshal(dict, v)
	} else {
		err = json.Unmarshal(dict, v)
	}
	return err
}

// CheckReadableFiles checks the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles checks the file system to ensure that every
// argument filename can be written
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles checks the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.  Empty names are skipped.
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		if len(name) == 0 {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			directory = "."
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
			continue
		}
		if checkExistence {
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}

// reorderChannelParams puts the channel overrides in the order they are applied:
// wildcards first, node selections next, named channels last, so the narrowest
// selection wins.  Within a group the sort is stable, a later entry overriding an
// earlier one with the same attribute and parameter.
func reorderChannelParams(pL []ChannelParam) []ChannelParam {
	wc := []ChannelParam{}
	nd := []ChannelParam{}
	nm := []ChannelParam{}

	for _, param := range pL {
		switch {
		case param.Attribute == "*":
			wc = append(wc, param)
		case strings.HasPrefix(param.Attribute, "node%%"):
			nd = append(nd, param)
		default:
			nm = append(nm, param)
		}
	}

	sort.SliceStable(nd, func(i, j int) bool { return nd[i].Attribute < nd[j].Attribute })
	sort.SliceStable(nm, func(i, j int) bool { return nm[i].Attribute < nm[j].Attribute })

	wc = append(wc, nd...)
	wc = append(wc, nm...)
	return wc
}

// channelParamValue decodes the value of an override.  Every channel parameter is numeric.
func channelParamValue(cp ChannelParam) (float64, error) {
	fvalue, err := strconv.ParseFloat(strings.TrimSpace(cp.Value), 64)
	if err != nil {
		return 0.0, fmt.Errorf("%w: channel parameter %s %s value %q is not a number", ErrDomain,
			cp.Attribute, cp.Param, cp.Value)
	}
	return fvalue, nil
}

// matchParam is true when the override selects the channel
func (ch *Channel) matchParam(attribute string) bool {
	switch {
	case attribute == "*":
		return true
	case strings.HasPrefix(attribute, "name%%"):
		return ch.Name == strings.TrimPrefix(attribute, "name%%")
	case strings.HasPrefix(attribute, "node%%"):
		node := strings.TrimPrefix(attribute, "node%%")
		return ch.Src.Node.Name == node || ch.Dst.Node.Name == node
	}
	return false
}

// setParam assigns a decoded override to the channel
func (ch *Channel) setParam(param string, value float64) {
	switch param {
	case "length":
		ch.LengthM = value
	case "lossdb":
		ch.Loss.LossDBPerKm = value
	case "ploss":
		ch.Loss.InitialLossProb = value
	}
}

// ApplyChannelParams applies overrides to the channels of a topology, broadest selection
// first.  An override that selects no channel is an error, as is a value outside its domain.
func ApplyChannelParams(topo *Topology, params []ChannelParam) error {
	for _, cp := range reorderChannelParams(params) {
		if err := ValidateChannelParam(cp.Attribute, cp.Param); err != nil {
			return err
		}
		value, err := channelParamValue(cp)
		if err != nil {
			return err
		}

		matched := false
		for _, ch := range topo.channels {
			if !ch.matchParam(cp.Attribute) {
				continue
			}
			matched = true
			ch.setParam(cp.Param, value)
		}
		if !matched {
			return fmt.Errorf("%w: channel parameter attribute %s selects no channel of %s", ErrConstruction,
				cp.Attribute, topo.Name)
		}
	}

	// overrides may have moved a channel out of its domain
	errs := []error{}
	for _, ch := range topo.channels {
		if ch.LengthM < 0.0 {
			errs = append(errs, fmt.Errorf("%w: channel %s length %g m", ErrDomain, ch.Name, ch.LengthM))
		}
		if err := ch.Loss.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name, err))
		}
	}
	return ReportErrs(errs)
}
