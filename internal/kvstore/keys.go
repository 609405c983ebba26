package kvstore

import (
	"fmt"
	"strings"
)

// Key is an ordered tuple of path segments. Encode renders it so that
// byte-lexicographic comparison of the encoded string matches
// tuple-lexicographic comparison of the segments.
type Key []string

const keySeparator = "\x00"

// Encode joins the segments with a separator byte that cannot appear
// in any segment we generate (UUIDs, zero-padded decimal timestamps,
// URL-safe ids), so prefix and range comparisons stay well-defined.
func (k Key) Encode() string {
	return strings.Join(k, keySeparator)
}

// Prefix returns the encoded key followed by the separator, i.e. the
// encoding of every key that has k as a proper tuple prefix.
func (k Key) Prefix() string {
	return k.Encode() + keySeparator
}

// TimeKey renders a Unix-millisecond timestamp as a left-zero-padded
// 20-digit decimal string, per the KV key layout: lexicographic order
// over this encoding matches chronological order.
func TimeKey(unixMilli int64) string {
	return fmt.Sprintf("%020d", unixMilli)
}

func monitorsKey(id string) Key       { return Key{"monitors", id} }
func monitorsPrefix() Key             { return Key{"monitors"} }
func historyKey(monitorID, recordID string) Key { return Key{"history", monitorID, recordID} }
func historyPrefix(monitorID string) Key        { return Key{"history", monitorID} }
func sessionsKey(token string) Key    { return Key{"sessions", token} }
func sessionsPrefix() Key             { return Key{"sessions"} }
func loginAttemptsKey(ip, id string) Key    { return Key{"login_attempts", ip, id} }
func loginAttemptsPrefix(ip string) Key     { return Key{"login_attempts", ip} }
func systemLogsKey(timeKey, id string) Key { return Key{"system_logs", timeKey, id} }
func systemLogsPrefix() Key                { return Key{"system_logs"} }

// MonitorsKey, HistoryKey, etc. are exported constructors used by
// adapters outside this package (internal/models consumers).
func MonitorsKey(id string) Key                 { return monitorsKey(id) }
func MonitorsPrefix() Key                       { return monitorsPrefix() }
func HistoryKey(monitorID, recordID string) Key { return historyKey(monitorID, recordID) }
func HistoryPrefix(monitorID string) Key        { return historyPrefix(monitorID) }
func SessionsKey(token string) Key              { return sessionsKey(token) }
func SessionsPrefix() Key                       { return sessionsPrefix() }
func LoginAttemptsKey(ip, id string) Key        { return loginAttemptsKey(ip, id) }
func LoginAttemptsPrefix(ip string) Key         { return loginAttemptsPrefix(ip) }
func SystemLogsKey(timeKey, id string) Key      { return systemLogsKey(timeKey, id) }
func SystemLogsPrefix() Key                     { return systemLogsPrefix() }
