package convert

// Constants for size conversions
const (
	KiB = 1024                 // 1 KiB = 1024 bytes
	Kb  = 1000                 // 1 Kb = 1000 bytes
	MiB = (1024 * 1024)        // 1 MiB = 1024 KiB
	MB  = (1000 * 1000)        // 1 MB = 1000 Kb
	GiB = (1024 * 1024 * 1024) // 1 GiB = 1024 MiB
	GB  = (1000 * 1000 * 1000) // 1 GB = 1000 MB
)

// BytesToKiB rounds a byte count up to whole kibibytes, the unit of the
// Debian Installed-Size field.
func BytesToKiB(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return (size + KiB - 1) / KiB
}
