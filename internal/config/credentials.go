package config

import "os"

// Credentials are read from the environment; a missing key excludes the
// provider from the registry rather than failing.
type Credentials struct {
	DARTKey      string
	KISAppKey    string
	KISAppSecret string
	ECOSKey      string
	KOSISKey     string
}

func LoadCredentials() Credentials {
	return Credentials{
		DARTKey:      os.Getenv("DART_API_KEY"),
		KISAppKey:    os.Getenv("KIS_APP_KEY"),
		KISAppSecret: os.Getenv("KIS_APP_SECRET"),
		ECOSKey:      os.Getenv("ECOS_API_KEY"),
		KOSISKey:     os.Getenv("KOSIS_API_KEY"),
	}
}

func (c Credentials) HasDART() bool  { return c.DARTKey != "" }
func (c Credentials) HasKIS() bool   { return c.KISAppKey != "" && c.KISAppSecret != "" }
func (c Credentials) HasECOS() bool  { return c.ECOSKey != "" }
func (c Credentials) HasKOSIS() bool { return c.KOSISKey != "" }
