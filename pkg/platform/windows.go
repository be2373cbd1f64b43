// SPDX-License-Identifier: MPL-2.0

package platform

import "strings"

// WindowsReservedNames is the set of base names Windows refuses to create in
// any directory, uppercase. An extension does not lift the restriction:
// "CON.txt" is as unusable as "CON", and so is a metadata directory like
// "con.egg-info" derived from a project named "con".
var WindowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsWindowsReservedName reports whether name collides with a reserved Windows
// device name. The check is case-insensitive and considers only the portion
// before the first dot, mirroring how Windows matches device names.
func IsWindowsReservedName(name string) bool {
	stem, _, _ := strings.Cut(name, ".")
	return WindowsReservedNames[strings.ToUpper(stem)]
}
