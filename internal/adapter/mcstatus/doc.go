// Package mcstatus checks live server status against the public mcsrvstat.us API.
package mcstatus
