package version

const ControlVersion = "c0.1.0"
