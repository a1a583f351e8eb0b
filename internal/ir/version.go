package ir

// EngineVersion is stamped on every refresh report.
const EngineVersion = "0.1.0"
