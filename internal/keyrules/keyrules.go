// Package keyrules maps configuration rule names to key-derivation
// functions. Rule names form a closed set; unknown names are rejected
// when configuration is validated, not at first use.
package keyrules

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// ImageIDRule names a function deriving a stable item id from an asset key.
type ImageIDRule string

const (
	// GenericImageID takes the basename segment before the first underscore:
	// "output/060901NE_COG.TIF" -> "060901NE".
	GenericImageID ImageIDRule = "GENERIC_IMAGE_ID_FUNCTION"

	// NAIPImageID combines the parent directory with the basename stem:
	// "wi/2017/100cm/rgb/42087/m_4208717_nw_16_1_20170922.tif"
	// -> "42087/m_4208717_nw_16_1_20170922".
	NAIPImageID ImageIDRule = "NAIP_IMAGE_ID_FUNCTION"
)

func (r ImageIDRule) Valid() bool {
	switch r {
	case GenericImageID, NAIPImageID:
		return true
	}
	return false
}

// Apply derives the item id for the given asset key.
func (r ImageIDRule) Apply(key string) (string, error) {
	base := path.Base(key)
	switch r {
	case GenericImageID:
		return strings.SplitN(base, "_", 2)[0], nil
	case NAIPImageID:
		stem := strings.SplitN(base, ".", 2)[0]
		dir := path.Base(path.Dir(key))
		return dir + "/" + stem, nil
	}
	return "", fmt.Errorf("unknown image id rule %q", string(r))
}

// SidecarRule names a function deriving a sidecar metadata key from an
// asset key. The empty rule disables sidecar enrichment.
type SidecarRule string

const (
	// NAIPFGDC maps a NAIP rgb tif key to its FGDC text sidecar:
	// ".../rgb/..../m_x.tif" -> ".../fgdc/..../m_x.txt".
	NAIPFGDC SidecarRule = "NAIP_FGDC_FUNCTION"
)

func (r SidecarRule) Valid() bool {
	return r == "" || r == NAIPFGDC
}

func (r SidecarRule) Enabled() bool { return r != "" }

func (r SidecarRule) Apply(key string) (string, error) {
	switch r {
	case NAIPFGDC:
		out := strings.ReplaceAll(key, "/rgb/", "/fgdc/")
		out = strings.ReplaceAll(out, ".tif", ".txt")
		return out, nil
	}
	return "", fmt.Errorf("unknown sidecar rule %q", string(r))
}

// FootprintGroup is the named capture group a footprint regex must define.
const FootprintGroup = "footprint"

// FootprintID applies re to the basename of key and returns the value of
// the "footprint" named group. The second return is false when the regex
// does not match or does not define the group; both cases are non-fatal
// for callers.
func FootprintID(re *regexp.Regexp, key string) (string, bool) {
	if re == nil {
		return "", false
	}
	base := path.Base(key)
	m := re.FindStringSubmatch(base)
	if m == nil {
		return "", false
	}
	idx := re.SubexpIndex(FootprintGroup)
	if idx < 0 || idx >= len(m) {
		return "", false
	}
	return m[idx], true
}
