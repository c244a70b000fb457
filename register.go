package synthetics

// This file imports the xk6-solarnetwork extension so that xk6 can discover and register it.
// When xk6 builds with --with github.com/ethanadams/solarnet-synthetics, it will import this package,
// which triggers the init() function in the xk6-solarnetwork subpackage.

import (
	_ "github.com/ethanadams/solarnet-synthetics/cmd/xk6-solarnetwork" // Import for side effects (init registration)
)
