package version

// Version contains the compellent tools version number.
var Version = "0.3.0"
