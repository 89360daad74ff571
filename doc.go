// Package vtrade is the transaction engine of a simulated currency trading
// account.
//
// The core functionalities include:
//   - Currency Catalog: the fixed set of supported currencies, classified in
//     families (fiat, crypto) carrying precision and minimum unit rules.
//   - Wallets: single currency balances that can never become negative nor
//     hold more decimal places than their currency allows.
//   - Portfolios: the wallets of one user and the base currency used to pay
//     for trades and to value the whole portfolio.
//   - Trading Engine: a stateless engine that validates buy and sell requests,
//     converts amounts using a RateProvider and applies the two wallet
//     mutations as a single step.
//
// The package performs no I/O. Rates, persistence, authentication and
// rendering are provided by the sibling packages and the `vtrade` command.
package vtrade
