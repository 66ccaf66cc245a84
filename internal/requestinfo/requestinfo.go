//
//  internal/requestinfo/requestinfo.go
//
//  Client fingerprint attached to every request: address, user-agent
//  family, and best-effort geolocation.  The authentication handlers add
//  these fields to their audit lines (login, callback, logout, refresh),
//  so a failed or suspicious sign-in can be traced to a client.
//
//  The struct is inert and safe to log.
//
//  Dependencies
//  • github.com/avct/uasurfer           (UA parsing)
//  • github.com/oschwald/geoip2-golang  (MaxMind lookup, optional)
//

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

// Info is the per-request client fingerprint.
type Info struct {
	IP         string
	Browser    string // "Chrome", "Firefox", ...
	Version    string // "124.0.6367"
	OS         string // "macOS", "Windows", ...
	Device     string // "Desktop", "Phone", ...
	IsBot      bool
	Lang       string // first Accept-Language tag
	CountryISO string
	City       string
}

// Fields renders Info as zap key/value pairs.
func (i *Info) Fields() []any {
	if i == nil {
		return nil
	}
	return []any{
		"client_ip", i.IP,
		"browser", i.Browser,
		"os", i.OS,
		"device", i.Device,
		"bot", i.IsBot,
		"country", i.CountryISO,
	}
}

//
//  -----------------------------
//  GeoLite2 reader
//  -----------------------------
//

var geoReader atomic.Pointer[geoip2.Reader]

// InitGeo opens the GeoLite2-City database.  An empty path disables
// lookups; geo fields then stay blank.
func InitGeo(dbPath string) error {
	if dbPath == "" {
		return nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open geoip db: %w", err)
	}
	if old := geoReader.Swap(r); old != nil {
		_ = old.Close()
	}
	return nil
}

// CloseGeo releases the reader opened by InitGeo.
func CloseGeo() {
	if r := geoReader.Swap(nil); r != nil {
		_ = r.Close()
	}
}

type ctxKey struct{}

// WithInfo stores i in ctx.
func WithInfo(ctx context.Context, i *Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, i)
}

// FromContext returns the Info stored by Enrich, or nil.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(ctxKey{}).(*Info)
	return v
}

// parse builds Info from the raw headers and address.
func parse(ip net.IP, uaHeader, acceptLang string) *Info {
	u := uasurfer.Parse(uaHeader)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}

	info := &Info{
		Browser: strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version: trimVersion(u.Browser.Version),
		OS:      osName,
		Device:  deviceName(u.DeviceType),
		IsBot:   u.IsBot(),
		Lang:    primaryLang(acceptLang),
	}
	if ip != nil {
		info.IP = ip.String()
		info.CountryISO, info.City = lookupGeo(ip)
	}
	return info
}

// trimVersion builds "major.minor.patch" without trailing ".0" groups.
func trimVersion(v uasurfer.Version) string {
	out := strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
	for strings.HasSuffix(out, ".0") {
		out = strings.TrimSuffix(out, ".0")
	}
	return out
}

func deviceName(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	case uasurfer.DeviceTV:
		return "TV"
	default:
		return "Unknown"
	}
}

// primaryLang extracts the first language tag before any ";q=" weight.
func primaryLang(al string) string {
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.ToLower(strings.TrimSpace(tag))
}

func lookupGeo(ip net.IP) (country, city string) {
	r := geoReader.Load()
	if r == nil {
		return "", ""
	}
	rec, err := r.City(ip)
	if err != nil {
		return "", ""
	}
	return rec.Country.IsoCode, rec.City.Names["en"]
}
