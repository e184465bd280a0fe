// Package apartment keeps the registry of metered apartments.
//
// Each registered apartment gets a dedicated subscription on
// <prefix>/floor/<number> in addition to the catch-all the ingest
// Supervisor always carries. Registration persists the apartment in SQLite,
// caches it in memory and asks the Subscriber to subscribe. On startup Load
// restores the cache and subscribes every known apartment again.
//
// Apartment numbers are 1 to 10 characters and may not contain the MQTT
// separator or wildcards ("/", "+", "#"), since they are spliced into topic
// filters. Numbers made only of digits imply their floor: "301" is floor
// "3", "1204" is floor "12".
package apartment
