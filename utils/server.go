package utils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// A server's 16-bit ID packs the group it belongs to and its instance number
// within that group. The string form is "group.instance".
const (
	GroupIDOffset = 12 // GroupIDOffset group field offset.
)

const (
	_instIDMask  = 0x0FFF
	_groupIDMask = 0x000F
)

// PackServerID combines a group ID and an instance ID into a server ID.
func PackServerID(groupID int, instID int) (uint16, error) {
	if groupID < 0 || groupID > _groupIDMask {
		return 0, fmt.Errorf("groupID %d out of range [0, %d]", groupID, _groupIDMask)
	}
	if instID <= 0 || instID > _instIDMask {
		return 0, fmt.Errorf("instID %d out of range (0, %d]", instID, _instIDMask)
	}
	return uint16(groupID)<<GroupIDOffset | uint16(instID), nil
}

// GetGroupIDByServerID extracts the group field of a server ID.
func GetGroupIDByServerID(serverID uint16) int {
	return int(serverID >> GroupIDOffset & _groupIDMask)
}

// GetInstIDByServerID extracts the instance field of a server ID.
func GetInstIDByServerID(serverID uint16) int {
	return int(serverID & _instIDMask)
}

// GetServerIDByStr parses a "group.instance" server ID string.
func GetServerIDByStr(serverIDStr string) (uint16, error) {
	var groupID, instID int
	if n, err := fmt.Sscanf(serverIDStr, "%d.%d", &groupID, &instID); err != nil || n < 2 {
		return 0, fmt.Errorf("serverID:%s format failed", serverIDStr)
	}
	return PackServerID(groupID, instID)
}

// GetStringByServerID returns the "group.instance" form of a server ID.
func GetStringByServerID(serverID uint16) string {
	var sb strings.Builder
	sb.Grow(8)
	_, _ = sb.WriteString(strconv.Itoa(GetGroupIDByServerID(serverID)))
	_, _ = sb.WriteString(".")
	_, _ = sb.WriteString(strconv.Itoa(GetInstIDByServerID(serverID)))
	return sb.String()
}

// ParseServerAddr splits a "host:port" address into its parts.
func ParseServerAddr(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("addr:%s parse failed: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("addr:%s invalid port: %w", addr, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("addr:%s empty host", addr)
	}
	return host, uint16(port), nil
}

// FormatServerAddr joins a host and port into a "host:port" address.
func FormatServerAddr(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
