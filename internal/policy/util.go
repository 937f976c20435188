package policy

import "strconv"

func idString(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
