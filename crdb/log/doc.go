// Package log defines the logging contract used across lib-crdb.
//
// Components take the Logger interface and never a concrete implementation;
// ZapLogger is the production implementation and NoneLogger the no-op
// default for callers that do not care about output.
package log
