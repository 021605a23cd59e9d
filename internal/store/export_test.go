package store

var ClassifyScriptError = classifyScriptError
